package cli

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func newListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List resources of a type",
		Flags:       flag.NewFlagSet("list", flag.ExitOnError),
		Run:         runList,
	}

	cmd.Flags.String("type", "", "Resource type")
	cmd.Flags.Int("limit", 0, "Page size")
	cmd.Flags.String("from", "", "Cursor value from the previous page")
	cmd.Flags.String("filter", "", "Query filters as field=value pairs, comma separated")
	cmd.Flags.String("server", "http://localhost:8080", "Server URL")
	cmd.Flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	return cmd
}

func runList(args []string) error {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	resourceType := flags.String("type", "", "Resource type")
	limit := flags.Int("limit", 0, "Page size")
	from := flags.String("from", "", "Cursor value from the previous page")
	filter := flags.String("filter", "", "Query filters as field=value pairs, comma separated")
	server := flags.String("server", "http://localhost:8080", "Server URL")
	token := flags.String("token", "", "Bearer token (defaults to DATAROOM_TOKEN)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *resourceType == "" {
		return fmt.Errorf("type is required")
	}

	query := url.Values{}
	if *limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", *limit))
	}
	if *from != "" {
		query.Set("from", *from)
	}
	if *filter != "" {
		for _, pair := range strings.Split(*filter, ",") {
			field, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid filter %q, expected field=value", pair)
			}
			query.Set(strings.TrimSpace(field), strings.TrimSpace(value))
		}
	}

	var page map[string]any
	c := newClient(*server, *token)
	if err := c.do(http.MethodGet, "/"+*resourceType, query, nil, &page); err != nil {
		return fmt.Errorf("failed to list %s: %w", *resourceType, err)
	}
	return printJSON(page)
}
