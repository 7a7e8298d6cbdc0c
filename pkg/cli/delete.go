package cli

import (
	"flag"
	"fmt"
	"net/http"
)

func newDeleteCommand() *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a resource by id",
		Flags:       flag.NewFlagSet("delete", flag.ExitOnError),
		Run:         runDelete,
	}

	cmd.Flags.String("type", "", "Resource type")
	cmd.Flags.String("id", "", "Resource id")
	cmd.Flags.String("server", "http://localhost:8080", "Server URL")
	cmd.Flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	return cmd
}

func runDelete(args []string) error {
	flags := flag.NewFlagSet("delete", flag.ExitOnError)
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

	c := newClient(*server, *token)
	if err := c.do(http.MethodDelete, fmt.Sprintf("/%s/%s", *resourceType, *id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", *resourceType, *id, err)
	}
	fmt.Printf("Deleted %s %s\n", *resourceType, *id)
	return nil
}
