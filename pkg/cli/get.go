package cli

import (
	"flag"
	"fmt"
	"net/http"
)

func newGetCommand() *Command {
	cmd := &Command{
		Name:        "get",
		Description: "Fetch a resource by id",
		Flags:       flag.NewFlagSet("get", flag.ExitOnError),
		Run:         runGet,
	}

	cmd.Flags.String("type", "", "Resource type")
	cmd.Flags.String("id", "", "Resource id")
	cmd.Flags.String("server", "http://localhost:8080", "Server URL")
	cmd.Flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	return cmd
}

func runGet(args []string) error {
	flags := flag.NewFlagSet("get", flag.ExitOnError)
	resourceType := flags.String("type", "", "Resource type")
	id := flags.String("id", "", "Resource id")
	server := flags.String("server", "http://localhost:8080", "Server URL")
	token := flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *resourceType == "" || *id == "" {
		return fmt.Errorf("type and id are required")
	}

	var resource map[string]any
	c := newClient(*server, *token)
	if err := c.do(http.MethodGet, fmt.Sprintf("/%s/%s", *resourceType, *id), nil, nil, &resource); err != nil {
		return fmt.Errorf("failed to fetch %s %s: %w", *resourceType, *id, err)
	}
	return printJSON(resource)
}
