package cli

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"

	"github.com/dataroomhq/dataroom/pkg/httputil"
)

func newWatchCommand() *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Stream change notifications for a resource",
		Flags:       flag.NewFlagSet("watch", flag.ExitOnError),
		Run:         runWatch,
	}

	cmd.Flags.String("type", "", "Resource type")
	cmd.Flags.String("id", "", "Resource id")
	cmd.Flags.Int("count", 0, "Stop after this many events, 0 streams forever")
	cmd.Flags.String("server", "http://localhost:8080", "Server URL")
	cmd.Flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	return cmd
}

func runWatch(args []string) error {
	flags := flag.NewFlagSet("watch", flag.ExitOnError)
	resourceType := flags.String("type", "", "Resource type")
	id := flags.String("id", "", "Resource id")
	count := flags.Int("count", 0, "Stop after this many events, 0 streams forever")
	server := flags.String("server", "http://localhost:8080", "Server URL")
	token := flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *resourceType == "" || *id == "" {
		return fmt.Errorf("type and id are required")
	}

	c := newClient(*server, *token)
	endpoint := fmt.Sprintf("%s/api/v1/%s/%s/events", c.server, *resourceType, *id)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody httputil.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("%s (%s)", errBody.Error, errBody.Kind)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	seen := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		fmt.Println(strings.TrimPrefix(line, "data: "))
		seen++
		if *count > 0 && seen >= *count {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream ended: %w", err)
	}
	return nil
}
