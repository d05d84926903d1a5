package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/zulandar/coursereel/internal/server"
)

func TestNewAPIClient_Address(t *testing.T) {
	tests := []struct {
		name string
		addr string
		env  string
		want string
	}{
		{"default", "", "", defaultServer},
		{"env", "", "http://api.internal:9000", "http://api.internal:9000"},
		{"flag wins", "http://flag:1", "http://env:2", "http://flag:1"},
		{"scheme added", "localhost:8081", "", "http://localhost:8081"},
		{"path dropped", "http://host:8080/api?x=1", "", "http://host:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvServer, tt.env)
			c, err := newAPIClient(tt.addr, identity{})
			if err != nil {
				t.Fatalf("newAPIClient: %v", err)
			}
			if got := c.base.String(); got != tt.want {
				t.Errorf("base = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIClient_SendsScopeHeaders(t *testing.T) {
	var got http.Header
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := newAPIClient(srv.URL, identity{Type: "DEPT_CREATOR", Depts: []string{"d1", "d2"}, Name: "이작가"})
	if err != nil {
		t.Fatal(err)
	}
	var out struct{ OK bool }
	if err := c.do(context.Background(), http.MethodPost, "/api/items", nil, map[string]string{"title": "x"}, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got.Get(server.HeaderCreatorType) != "DEPT_CREATOR" {
		t.Errorf("type header = %q", got.Get(server.HeaderCreatorType))
	}
	if got.Get(server.HeaderCreatorDepts) != "d1,d2" {
		t.Errorf("depts header = %q", got.Get(server.HeaderCreatorDepts))
	}
	if name, _ := url.QueryUnescape(got.Get(server.HeaderCreatorName)); name != "이작가" {
		t.Errorf("name header = %q", got.Get(server.HeaderCreatorName))
	}
	if got.Get("Content-Type") != "application/json" || body["title"] != "x" {
		t.Errorf("body not sent as JSON: %v %v", got.Get("Content-Type"), body)
	}
}

func TestAPIClient_NoIdentityNoHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	c, _ := newAPIClient(srv.URL, identity{})
	if err := c.do(context.Background(), http.MethodGet, "/healthz", nil, nil, nil); err != nil {
		t.Fatalf("do: %v", err)
	}
	if got.Get(server.HeaderCreatorType) != "" {
		t.Error("scope headers sent without identity")
	}
}

func TestAPIClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		validation bool
	}{
		{"conflict", http.StatusConflict, `{"error":"another generation job is running","runningId":"ci-1"}`, "another generation job is running (running: ci-1)", false},
		{"not found", http.StatusNotFound, `{"error":"not found"}`, "not found (HTTP 404)", false},
		{"plain body", http.StatusInternalServerError, `oops`, "Internal Server Error (HTTP 500)", false},
		{"validation", http.StatusUnprocessableEntity, `{"validation":{"ok":false,"issues":[{"code":"title","message":"제목을 입력하세요."}]}}`, "validation failed (HTTP 422)", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := newAPIClient(srv.URL, identity{})
			var resp itemResponse
			err := c.do(context.Background(), http.MethodPost, "/api/items/ci-1/run", nil, nil, &resp)
			var apiErr *apiError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *apiError", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			if isValidationError(err) != tt.validation {
				t.Errorf("isValidationError = %v", isValidationError(err))
			}
			if tt.validation && (resp.Validation == nil || len(resp.Validation.Issues) != 1) {
				t.Errorf("validation body not decoded: %+v", resp.Validation)
			}
		})
	}
}

func TestClientFlags_UppercasesType(t *testing.T) {
	f := clientFlags{server: "http://x", creatorType: "dept_creator", depts: []string{"d1"}, name: "a"}
	c, err := f.client()
	if err != nil {
		t.Fatal(err)
	}
	if c.who.Type != "DEPT_CREATOR" || !strings.EqualFold(c.who.Name, "a") {
		t.Errorf("who = %+v", c.who)
	}
}
