package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dataroomhq/dataroom/pkg/httputil"
)

// client is a thin wrapper over the resource HTTP API shared by the remote
// subcommands.
type client struct {
	server string
	token  string
	http   *http.Client
}

func newClient(server, token string) *client {
	if token == "" {
		token = os.Getenv("DATAROOM_TOKEN")
	}
	return &client{
		server: strings.TrimSuffix(server, "/"),
		token:  token,
		http:   http.DefaultClient,
	}
}

// do issues a request against the API and decodes the JSON response into out.
// Error responses are decoded from the server's standard error shape.
func (c *client) do(method, path string, query url.Values, body any, out any) error {
	endpoint := c.server + "/api/v1" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody httputil.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("%s (%s)", errBody.Error, errBody.Kind)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON pretty-prints a decoded response to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
