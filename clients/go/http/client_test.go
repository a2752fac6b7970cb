package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewHTTPClient(Config{BaseURL: srv.URL}), srv
}

func TestGetFlag(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/flags/dark-mode" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"dark-mode","is_enabled":true}`))
	}))
	defer srv.Close()

	flag, err := client.GetFlag(context.Background(), "dark-mode")
	if err != nil {
		t.Fatalf("GetFlag() error = %v", err)
	}
	if flag.Name != "dark-mode" || !flag.Enabled {
		t.Errorf("flag = %+v, want dark-mode/true", flag)
	}
}

func TestGetFlag_NotFound(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"flag not found"}`))
	}))
	defer srv.Close()

	_, err := client.GetFlag(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestCreateFlag(t *testing.T) {
	var gotBody map[string]any
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/flags" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"flag 'dark-mode' created"}`))
	}))
	defer srv.Close()

	flag, err := client.CreateFlag(context.Background(), "dark-mode", true)
	if err != nil {
		t.Fatalf("CreateFlag() error = %v", err)
	}
	if flag.Name != "dark-mode" || !flag.Enabled {
		t.Errorf("flag = %+v, want dark-mode/true", flag)
	}
	if gotBody["name"] != "dark-mode" || gotBody["is_enabled"] != true {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestListFlags(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"alpha","is_enabled":true},{"name":"beta","is_enabled":false}]`))
	}))
	defer srv.Close()

	flags, err := client.ListFlags(context.Background())
	if err != nil {
		t.Fatalf("ListFlags() error = %v", err)
	}
	if len(flags) != 2 || flags[0].Name != "alpha" || !flags[0].Enabled || flags[1].Name != "beta" {
		t.Errorf("flags = %+v", flags)
	}
}

func TestSetEnabled(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPut {
			t.Fatalf("method = %s, want PUT", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":"flag 'dark-mode' updated"}`))
	}))
	defer srv.Close()

	flag, err := client.SetEnabled(context.Background(), "dark-mode", false)
	if err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if gotPath != "/flags/dark-mode" {
		t.Errorf("path = %q, want /flags/dark-mode", gotPath)
	}
	if gotBody["is_enabled"] != false {
		t.Errorf("request body = %v, want is_enabled false", gotBody)
	}
	if flag.Enabled {
		t.Error("returned flag should echo the requested state")
	}
}

func TestEvaluate(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/evaluate" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"flag_name":"dark-mode","result":true}`))
	}))
	defer srv.Close()

	result, err := client.Evaluate(context.Background(), "dark-mode", "user-1")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result {
		t.Error("result = false, want true")
	}
}

func TestPathEscaping(t *testing.T) {
	var gotPath string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"name":"a/b","is_enabled":false}`))
	}))
	defer srv.Close()

	if _, err := client.GetFlag(context.Background(), "a/b"); err != nil {
		t.Fatalf("GetFlag() error = %v", err)
	}
	if gotPath != "/flags/a%2Fb" {
		t.Errorf("path = %q, want /flags/a%%2Fb", gotPath)
	}
}
