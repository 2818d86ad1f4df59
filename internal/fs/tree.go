package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/yalue/merged_fs"

	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/fs/mountfs"
)

// CompiledPrefix is the top level directory of the asset namespace serving
// compiler output. Source files below it are hidden.
const CompiledPrefix = "@compiled"

// CompiledPath returns the asset path of a compiler output written to
// name below the compile directory.
func CompiledPath(name string) string {
	return CompiledPrefix + "/" + name
}

// SourcePath maps an asset path back to the source namespace.
func SourcePath(name string) string {
	if rest, ok := strings.CutPrefix(name, CompiledPrefix+"/"); ok {
		return rest
	}
	return name
}

// Tree is the read side of a pipeline. Sources holds the configured source
// directories merged into one namespace, with excluded files hidden; bundle
// patterns are expanded against it. Assets additionally mounts the compiler
// output directory at CompiledPrefix, so compiled paths and untouched sources
// can be read through one file system without shadowing each other.
type Tree struct {
	Sources    fs.FS
	Assets     fs.FS
	CompileDir string
}

// NewTree creates the compile directory if needed. Earlier source directories
// shadow later ones on conflicting paths.
func NewTree(dirs []config.SourceDir, excluded []string, compileDir string) (*Tree, error) {
	if err := os.MkdirAll(compileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create compile directory: %w", err)
	}

	fses := make([]fs.FS, 0, len(dirs))
	for _, d := range dirs {
		var fsys fs.FS = os.DirFS(d.Path)

		// Keep compiler output out of glob results when it lives inside a
		// source directory.
		if rel, err := filepath.Rel(d.Path, compileDir); err == nil && rel != "." && filepath.IsLocal(rel) {
			f, err := NewFilterFS(fsys, nil, []string{"/" + glob.QuoteMeta(filepath.ToSlash(rel))})
			if err != nil {
				return nil, err
			}
			fsys = f
		}

		if d.Prefix != "" && d.Prefix != "." {
			fsys = mountfs.New(map[string]fs.FS{filepath.ToSlash(filepath.Clean(d.Prefix)): fsys})
		}
		fses = append(fses, fsys)
	}

	excluded = append(slices.Clone(excluded), "/"+glob.QuoteMeta(CompiledPrefix))

	sources, err := NewFilterFS(merged_fs.MergeMultiple(fses...), nil, excluded)
	if err != nil {
		return nil, err
	}

	return &Tree{
		Sources:    sources,
		Assets:     merged_fs.MergeMultiple(mountfs.New(map[string]fs.FS{CompiledPrefix: os.DirFS(compileDir)}), sources),
		CompileDir: compileDir,
	}, nil
}
