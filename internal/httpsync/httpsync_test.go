package httpsync

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/logging"
)

func TestHTTPFileSynchronizer(t *testing.T) {
	contents := `window.lib = {};`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Accept") != "application/javascript" {
			http.Error(w, "missing accept header", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		if _, err := w.Write([]byte(contents)); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	file := filepath.Join(t.TempDir(), "vendor", "lib.js")
	synchronizer := New(file, ts.URL, map[string]string{"Accept": "application/javascript", "X-Empty": ""}, nil)
	if err := synchronizer.Execute(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("expected no error while reading file, got: %v", err)
	}

	if !bytes.Equal(data, []byte(contents)) {
		t.Fatal("downloaded data does not match expected contents")
	}
}

func TestHTTPFileSynchronizer_Error_BadStatusCode(t *testing.T) {
	currentContents := `window.previous = true;`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	dir := t.TempDir()
	file := filepath.Join(dir, "lib.js")
	if err := os.WriteFile(file, []byte(currentContents), 0o644); err != nil {
		t.Fatalf("failed to write current contents: %s", err.Error())
	}

	err := New(file, ts.URL, nil, nil).Execute(context.Background())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if exp := "unsuccessful status code 404"; err.Error() != exp {
		t.Fatalf("expected error %q, got %q", exp, err.Error())
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != currentContents {
		t.Fatalf("expected previous contents to be kept, got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temporary files to be left behind, got %v", entries)
	}
}

func TestHTTPFileSynchronizer_Credentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok {
			if user != "alice" || pass != "wonderland" {
				http.Error(w, "bad credentials", http.StatusUnauthorized)
				return
			}
		} else if r.Header.Get("Authorization") != "Bearer secret_token" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	for _, tc := range []struct {
		note   string
		secret map[string]any
		exp    string
	}{
		{
			note:   "token auth",
			secret: map[string]any{"type": "token_auth", "token": "secret_token"},
		},
		{
			note:   "basic auth",
			secret: map[string]any{"type": "basic_auth", "username": "alice", "password": "wonderland"},
		},
		{
			note:   "wrong token",
			secret: map[string]any{"type": "token_auth", "token": "nope"},
			exp:    "unsuccessful status code 401",
		},
		{
			note:   "unsupported secret type",
			secret: map[string]any{"type": "aws_auth", "access_key_id": "a", "secret_access_key": "b"},
			exp:    "credentials: unsupported secret type for http sync: *config.SecretAWS",
		},
		{
			note:   "incomplete secret",
			secret: map[string]any{"type": "basic_auth", "username": "alice"},
			exp:    "missing username or password in basic auth secret",
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			secret := config.Secret{Name: "auth", Value: tc.secret}
			file := filepath.Join(t.TempDir(), "lib.js")

			err := New(file, ts.URL, nil, secret.Ref()).Execute(t.Context())
			if tc.exp == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected error containing %q, got %v", tc.exp, err)
			}
		})
	}
}

func TestSync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.js" {
			http.NotFound(w, r)
			return
		}
		if _, err := w.Write([]byte("// " + r.URL.Path)); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	cfg := &config.Root{
		RemoteDir: dir,
		RemoteFiles: map[string]*config.RemoteFile{
			"js/a.js":        {Path: "js/a.js", URL: ts.URL + "/a.js"},
			"js/vendor/b.js": {Path: "js/vendor/b.js", URL: ts.URL + "/b.js"},
		},
	}

	if err := Sync(t.Context(), cfg, logging.NewNopLogger()); err != nil {
		t.Fatal(err)
	}

	for p, exp := range map[string]string{"js/a.js": "// /a.js", "js/vendor/b.js": "// /b.js"} {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != exp {
			t.Fatalf("%s: expected %q, got %q", p, exp, data)
		}
	}

	cfg.RemoteFiles["js/c.js"] = &config.RemoteFile{Path: "js/c.js", URL: ts.URL + "/missing.js"}
	err := Sync(t.Context(), cfg, logging.NewNopLogger())
	if err == nil || !strings.Contains(err.Error(), `remote file "js/c.js": unsuccessful status code 404`) {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestSyncNothingConfigured(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "remote")
	if err := Sync(t.Context(), &config.Root{RemoteDir: dir}, logging.NewNopLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected remote directory not to be created, got %v", err)
	}
}
