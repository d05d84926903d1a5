package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/server"
)

// EnvServer overrides the default API address.
const EnvServer = "COURSEREEL_SERVER"

const defaultServer = "http://localhost:8080"

// apiClient talks to a running creel server. Mutations go through the server
// so its in-memory store stays the only writer.
type apiClient struct {
	base *url.URL
	http *http.Client
	who  identity
}

// identity is the creator scope sent with every request.
type identity struct {
	Type  string
	Depts []string
	Name  string
}

// apiError is a non-2xx response.
type apiError struct {
	Status    int
	Message   string
	RunningID string
	Body      map[string]any
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.RunningID != "" {
		return fmt.Sprintf("%s (running: %s)", msg, e.RunningID)
	}
	return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
}

func newAPIClient(addr string, who identity) (*apiClient, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = os.Getenv(EnvServer)
	}
	if addr == "" {
		addr = defaultServer
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse server address %q: %w", addr, err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
		who:  who,
	}, nil
}

// do sends body as JSON and decodes the response into out. A 422 still
// decodes into out and is returned as an *apiError so callers can print the
// validation issues.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.who.Type != "" {
		req.Header.Set(server.HeaderCreatorType, c.who.Type)
		req.Header.Set(server.HeaderCreatorDepts, strings.Join(c.who.Depts, ","))
		req.Header.Set(server.HeaderCreatorName, url.QueryEscape(c.who.Name))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, &apiErr.Body) == nil {
			apiErr.Message, _ = apiErr.Body["error"].(string)
			apiErr.RunningID, _ = apiErr.Body["runningId"].(string)
		}
		if resp.StatusCode == http.StatusUnprocessableEntity && out != nil {
			_ = json.Unmarshal(data, out)
			if apiErr.Message == "" {
				apiErr.Message = "validation failed"
			}
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// isValidationError reports whether err is a 422 refusal.
func isValidationError(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity
}

// clientFlags are the connection and identity flags shared by API commands.
type clientFlags struct {
	server      string
	creatorType string
	depts       []string
	name        string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "API address (default $"+EnvServer+" or "+defaultServer+")")
	cmd.Flags().StringVar(&f.creatorType, "creator-type", string(scope.GlobalCreator), "creator type (GLOBAL_CREATOR or DEPT_CREATOR)")
	cmd.Flags().StringSliceVar(&f.depts, "dept", nil, "allowed department id (repeatable, department creators)")
	cmd.Flags().StringVar(&f.name, "as", os.Getenv("USER"), "creator display name")
}

func (f *clientFlags) client() (*apiClient, error) {
	return newAPIClient(f.server, identity{
		Type:  strings.ToUpper(f.creatorType),
		Depts: f.depts,
		Name:  f.name,
	})
}
