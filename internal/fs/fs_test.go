package fs_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/go-cmp/cmp"

	"github.com/assetpipe/assetctl/internal/config"
	assetfs "github.com/assetpipe/assetctl/internal/fs"
	"github.com/assetpipe/assetctl/internal/test/tempfs"
)

func TestFilterFS(t *testing.T) {
	fsys := assetfs.MapFS(map[string]string{
		"css/a.css":         "a",
		"css/a.css.map":     "{}",
		"css/vendor/b.css":  "b",
		"js/app.js":         "app",
		"js/app.js.map":     "{}",
		"js/drafts/wip.js":  "wip",
		"templates/x.jst":   "x",
		"drafts/notes.css":  "n",
		"README.md":         "readme",
		"css/vendor/c.scss": "c",
	})

	for _, tc := range []struct {
		note     string
		included []string
		excluded []string
		exp      []string
	}{
		{
			note: "no filters",
			exp: []string{
				"README.md", "css/a.css", "css/a.css.map", "css/vendor/b.css", "css/vendor/c.scss",
				"drafts/notes.css", "js/app.js", "js/app.js.map", "js/drafts/wip.js", "templates/x.jst",
			},
		},
		{
			note:     "exclude by base name",
			excluded: []string{"*.map", "drafts"},
			exp:      []string{"README.md", "css/a.css", "css/vendor/b.css", "css/vendor/c.scss", "js/app.js", "templates/x.jst"},
		},
		{
			note:     "anchored exclude",
			excluded: []string{"/drafts"},
			exp: []string{
				"README.md", "css/a.css", "css/a.css.map", "css/vendor/b.css", "css/vendor/c.scss",
				"js/app.js", "js/app.js.map", "js/drafts/wip.js", "templates/x.jst",
			},
		},
		{
			note:     "anchored exclude with path",
			excluded: []string{"/css/vendor", "/js/*.map"},
			exp: []string{
				"README.md", "css/a.css", "css/a.css.map", "drafts/notes.css",
				"js/app.js", "js/drafts/wip.js", "templates/x.jst",
			},
		},
		{
			note:     "exclude exact base name",
			excluded: []string{"app.js", "wip.js"},
			exp: []string{
				"README.md", "css/a.css", "css/a.css.map", "css/vendor/b.css", "css/vendor/c.scss",
				"drafts/notes.css", "js/app.js.map", "templates/x.jst",
			},
		},
		{
			note:     "exclude with path",
			excluded: []string{"css/**/*.scss", "js/*.map"},
			exp: []string{
				"README.md", "css/a.css", "css/a.css.map", "css/vendor/b.css",
				"drafts/notes.css", "js/app.js", "js/drafts/wip.js", "templates/x.jst",
			},
		},
		{
			note:     "include",
			included: []string{"*.css", "*.js"},
			excluded: []string{"drafts"},
			exp:      []string{"css/a.css", "css/vendor/b.css", "js/app.js"},
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			f, err := assetfs.NewFilterFS(fsys, tc.included, tc.excluded)
			if err != nil {
				t.Fatal(err)
			}

			var files []string
			if err := fs.WalkDir(f, ".", func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					files = append(files, path)
				}
				return nil
			}); err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tc.exp, files); diff != "" {
				t.Fatalf("unexpected files (-want +got):\n%s", diff)
			}

			for _, path := range tc.exp {
				if _, err := fs.Stat(f, path); err != nil {
					t.Fatalf("expected %s to be visible: %v", path, err)
				}
			}
		})
	}
}

func TestFilterFSHiddenOpen(t *testing.T) {
	f, err := assetfs.NewFilterFS(assetfs.MapFS(map[string]string{"a.css.map": "{}"}), nil, []string{"*.map"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Open("a.css.map"); !os.IsNotExist(err) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestNewFilterFSInvalidPattern(t *testing.T) {
	if _, err := assetfs.NewFilterFS(assetfs.MapFS(nil), nil, []string{"[a-"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTree(t *testing.T) {
	files := map[string]string{
		"static/css/a.css":            "a {}",
		"static/css/a.css.map":        "{}",
		"static/js/app.ts":            "let x: number = 1;",
		"vendor/assets/lib.js":        "var lib;",
		"vendor/assets/css/a.css":     "vendor {}",
		"static/.assetctl/c/stale.js": "stale",
		"static/@compiled/shadow.js":  "shadow",
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		compileDir := filepath.Join(root, "static", ".assetctl", "c")
		tree, err := assetfs.NewTree([]config.SourceDir{
			{Path: filepath.Join(root, "static")},
			{Path: filepath.Join(root, "vendor", "assets"), Prefix: "vendor"},
		}, []string{"*.map"}, compileDir)
		if err != nil {
			t.Fatal(err)
		}

		matches, err := doublestar.Glob(tree.Sources, "**/*.{css,js,ts,map}", doublestar.WithFilesOnly())
		if err != nil {
			t.Fatal(err)
		}

		exp := []string{"css/a.css", "js/app.ts", "vendor/css/a.css", "vendor/lib.js"}
		if diff := cmp.Diff(exp, matches); diff != "" {
			t.Fatalf("unexpected matches (-want +got):\n%s", diff)
		}

		if err := os.WriteFile(filepath.Join(compileDir, "app.js"), []byte("var x = 1;"), 0o644); err != nil {
			t.Fatal(err)
		}

		bs, err := fs.ReadFile(tree.Assets, assetfs.CompiledPath("app.js"))
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != "var x = 1;" {
			t.Fatalf("unexpected compiled content %q", bs)
		}

		bs, err = fs.ReadFile(tree.Assets, "css/a.css")
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != "a {}" {
			t.Fatalf("expected source to be served unchanged, got %q", bs)
		}

		if _, err := fs.Stat(tree.Assets, "@compiled/shadow.js"); err == nil {
			t.Fatal("expected source files below the compiled prefix to be hidden")
		}

		bs, err = fs.ReadFile(tree.Assets, "vendor/css/a.css")
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != "vendor {}" {
			t.Fatalf("unexpected vendor content %q", bs)
		}

		ok, err := assetfs.FSContainsFiles(tree.Sources)
		if err != nil || !ok {
			t.Fatalf("expected files, got %v, %v", ok, err)
		}
	})
}

func TestFSContainsFiles(t *testing.T) {
	ok, err := assetfs.FSContainsFiles(os.DirFS(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected empty directory")
	}

	ok, err = assetfs.FSContainsFiles(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	if err != nil || ok {
		t.Fatalf("expected no files and no error, got %v, %v", ok, err)
	}
}
