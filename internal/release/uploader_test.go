package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"
)

type fakeAsset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
	URL  string `json:"browser_download_url"`
}

// fakeGitHub serves the subset of the releases API the uploader uses.
type fakeGitHub struct {
	mu      sync.Mutex
	tag     string
	assets  []fakeAsset
	nextID  int64
	deleted []int64
	bodies  map[string]string
	auth    string
}

func newFakeGitHub(tag string, existing ...string) *fakeGitHub {
	f := &fakeGitHub{tag: tag, nextID: 100, bodies: make(map[string]string)}
	for _, name := range existing {
		f.nextID++
		f.assets = append(f.assets, fakeAsset{ID: f.nextID, Name: name})
	}
	return f
}

func (f *fakeGitHub) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		if chi.URLParam(r, "tag") != f.tag {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "tag_name": f.tag})
	})
	r.Get("/repos/{owner}/{repo}/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.assets)
	})
	r.Delete("/repos/{owner}/{repo}/releases/assets/{assetID}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/repos/{owner}/{repo}/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		f.bodies[name] = string(body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(fakeAsset{
			ID:   f.nextID,
			Name: name,
			Size: len(body),
			URL:  fmt.Sprintf("https://example.invalid/download/%s", name),
		})
	})
	return r
}

func newTestUploader(t *testing.T, fake *fakeGitHub, token string) *Uploader {
	t.Helper()
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)

	client := NewClient(context.Background(), token)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	client.BaseURL = base
	client.UploadURL = base

	u, err := NewUploader(client, "uchuserver/uchu-tool", 0, nil)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	return u
}

func writeArchives(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("zip:"+name), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

func TestUploader_Upload(t *testing.T) {
	fake := newFakeGitHub("v1.2.0", "Uchu.Tool-Linux-x64.zip", "notes.txt")
	u := newTestUploader(t, fake, "secret-token")

	_, paths := writeArchives(t, "Uchu.Tool-Linux-x64.zip", "Uchu.Tool-Windows-x64.zip")

	assets, err := u.Upload(context.Background(), "v1.2.0", paths)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("Upload() returned %d assets, want 2", len(assets))
	}

	if !assets[0].Replaced || assets[1].Replaced {
		t.Errorf("Replaced = %v, %v; want true, false", assets[0].Replaced, assets[1].Replaced)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != 101 {
		t.Errorf("deleted assets = %v, want [101]", fake.deleted)
	}
	if fake.bodies["Uchu.Tool-Windows-x64.zip"] != "zip:Uchu.Tool-Windows-x64.zip" {
		t.Errorf("uploaded body = %q", fake.bodies["Uchu.Tool-Windows-x64.zip"])
	}
	if assets[1].Size != len("zip:Uchu.Tool-Windows-x64.zip") {
		t.Errorf("Size = %d", assets[1].Size)
	}
	if fake.auth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", fake.auth)
	}
}

func TestUploader_ReleaseNotFound(t *testing.T) {
	fake := newFakeGitHub("v1.0.0")
	u := newTestUploader(t, fake, "")

	_, paths := writeArchives(t, "App-Linux-x64.zip")
	_, err := u.Upload(context.Background(), "v9.9.9", paths)
	if !errors.Is(err, ErrReleaseNotFound) {
		t.Errorf("Upload() error = %v, want ErrReleaseNotFound", err)
	}
}

func TestUploader_MissingFile(t *testing.T) {
	fake := newFakeGitHub("v1.0.0")
	u := newTestUploader(t, fake, "")

	_, err := u.Upload(context.Background(), "v1.0.0", []string{filepath.Join(t.TempDir(), "missing.zip")})
	if err == nil {
		t.Error("Upload() should fail for a missing archive")
	}
}

func TestNewUploader_InvalidRepo(t *testing.T) {
	client := github.NewClient(nil)
	for _, repo := range []string{"", "noslash", "a/b/c"} {
		if _, err := NewUploader(client, repo, 0, nil); err == nil {
			t.Errorf("NewUploader(%q) should fail", repo)
		}
	}
}

func TestFindArchives(t *testing.T) {
	dir, _ := writeArchives(t, "b-Linux-x64.zip", "a-Windows-x64.zip", "readme.txt")

	got, err := FindArchives(dir)
	if err != nil {
		t.Fatalf("FindArchives() error = %v", err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a-Windows-x64.zip" || filepath.Base(got[1]) != "b-Linux-x64.zip" {
		t.Errorf("FindArchives() = %v", got)
	}

	if _, err := FindArchives(t.TempDir()); err == nil {
		t.Error("FindArchives() should fail for a directory without archives")
	}
}
