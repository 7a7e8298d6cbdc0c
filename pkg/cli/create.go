package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func newCreateCommand() *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a resource from a JSON file or stdin",
		Flags:       flag.NewFlagSet("create", flag.ExitOnError),
		Run:         runCreate,
	}

	cmd.Flags.String("type", "", "Resource type")
	cmd.Flags.String("file", "-", "JSON payload file, - for stdin")
	cmd.Flags.String("server", "http://localhost:8080", "Server URL")
	cmd.Flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	return cmd
}

func runCreate(args []string) error {
	flags := flag.NewFlagSet("create", flag.ExitOnError)
	resourceType := flags.String("type", "", "Resource type")
	file := flags.String("file", "-", "JSON payload file, - for stdin")
	server := flags.String("server", "http://localhost:8080", "Server URL")
	token := flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *resourceType == "" {
		return fmt.Errorf("type is required")
	}

	var data []byte
	var err error
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	var created map[string]any
	c := newClient(*server, *token)
	if err := c.do(http.MethodPost, "/"+*resourceType, nil, payload, &created); err != nil {
		return fmt.Errorf("failed to create %s: %w", *resourceType, err)
	}
	return printJSON(created)
}
