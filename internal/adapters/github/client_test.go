package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"farm_sync/internal/domain"
)

func TestGetRevision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/repos/acme/site/contents/content/farms/green-acres.md" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("ref") != "main" {
			t.Errorf("ref = %q", r.URL.Query().Get("ref"))
		}
		if r.Header.Get("Authorization") != "token gh-tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{"sha": "abc123"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "acme/site", "main", "gh-tok", 100)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rev, err := c.GetRevision(context.Background(), "content/farms/green-acres.md")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if rev != "abc123" {
		t.Fatalf("rev = %q", rev)
	}
}

func TestGetRevision_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "acme/site", "main", "gh-tok", 100)
	_, err := c.GetRevision(context.Background(), "content/farms/nope.md")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_UpdateCarriesRevisionAndBranch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "acme/site", "main", "gh-tok", 100)
	err := c.Put(context.Background(), "content/farms/green-acres.md", "# hello\n", "abc123", "Update farm: Green Acres (A100)")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if got["sha"] != "abc123" || got["branch"] != "main" {
		t.Fatalf("payload = %+v", got)
	}
	if got["message"] != "Update farm: Green Acres (A100)" {
		t.Fatalf("message = %v", got["message"])
	}
	raw, err := base64.StdEncoding.DecodeString(got["content"].(string))
	if err != nil || string(raw) != "# hello\n" {
		t.Fatalf("content = %v (%v)", got["content"], err)
	}
}

func TestPut_CreateOmitsRevision(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "acme/site", "main", "gh-tok", 100)
	if err := c.Put(context.Background(), "content/farms/new.md", "body", "", "create"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, present := got["sha"]; present {
		t.Fatalf("create must not send a sha: %+v", got)
	}
}

func TestPut_ConflictSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "acme/site", "main", "gh-tok", 100)
	if err := c.Put(context.Background(), "content/farms/x.md", "body", "stale", "msg"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestNew_RequiresRepoAndToken(t *testing.T) {
	if _, err := New("", "", "main", "tok", 5); err == nil {
		t.Fatalf("expected error for missing repo")
	}
	if _, err := New("", "acme/site", "main", "", 5); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
