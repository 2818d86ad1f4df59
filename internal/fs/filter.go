package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// FilterFS hides entries of the wrapped file system. A path is hidden when it
// matches an excluded pattern, or when included patterns are given and a file
// matches none of them. Directories are only ever hidden by exclusion, so that
// included files below them stay reachable.
//
// Patterns use '/' as separator, so `*` stays within a path segment and `**`
// spans segments. A pattern without '/' is matched against the base name; a
// leading '/' anchors a pattern at the root.
type FilterFS struct {
	fsys     fs.FS
	included []pattern
	excluded []pattern
}

type pattern struct {
	g        glob.Glob
	basename bool
}

func (p pattern) match(name string) bool {
	if p.basename {
		return p.g.Match(path.Base(name))
	}
	return p.g.Match(name)
}

var (
	_ fs.ReadDirFS = (*FilterFS)(nil)
	_ fs.StatFS    = (*FilterFS)(nil)
)

func NewFilterFS(fsys fs.FS, included, excluded []string) (*FilterFS, error) {
	inc, err := compilePatterns(included)
	if err != nil {
		return nil, err
	}
	exc, err := compilePatterns(excluded)
	if err != nil {
		return nil, err
	}
	return &FilterFS{fsys: fsys, included: inc, excluded: exc}, nil
}

func compilePatterns(ps []string) ([]pattern, error) {
	out := make([]pattern, 0, len(ps))
	for _, p := range ps {
		p0, anchored := strings.CutPrefix(p, "/")
		g, err := glob.Compile(p0, '/')
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %q: %w", p, err)
		}
		out = append(out, pattern{g: g, basename: !anchored && !strings.Contains(p0, "/")})
	}
	return out, nil
}

func (f *FilterFS) hidden(name string, dir bool) bool {
	if name == "." {
		return false
	}
	for _, p := range f.excluded {
		if p.match(name) {
			return true
		}
	}
	if dir || len(f.included) == 0 {
		return false
	}
	for _, p := range f.included {
		if p.match(name) {
			return false
		}
	}
	return true
}

func (f *FilterFS) Open(name string) (fs.File, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if f.hidden(name, info.IsDir()) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	if dir, ok := file.(fs.ReadDirFile); ok && info.IsDir() {
		return &filteredDir{ReadDirFile: dir, name: name, fsys: f}, nil
	}

	return file, nil
}

func (f *FilterFS) Stat(name string) (fs.FileInfo, error) {
	info, err := fs.Stat(f.fsys, name)
	if err != nil {
		return nil, err
	}
	if f.hidden(name, info.IsDir()) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return info, nil
}

func (f *FilterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	info, err := f.Stat(name)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}

	entries, err := fs.ReadDir(f.fsys, name)
	if err != nil {
		return nil, err
	}
	return f.filter(name, entries), nil
}

func (f *FilterFS) filter(dir string, entries []fs.DirEntry) []fs.DirEntry {
	kept := entries[:0]
	for _, e := range entries {
		if !f.hidden(path.Join(dir, e.Name()), e.IsDir()) {
			kept = append(kept, e)
		}
	}
	return kept
}

type filteredDir struct {
	fs.ReadDirFile
	name string
	fsys *FilterFS
}

func (d *filteredDir) ReadDir(n int) ([]fs.DirEntry, error) {
	for {
		entries, err := d.ReadDirFile.ReadDir(n)
		kept := d.fsys.filter(d.name, entries)
		if n <= 0 || len(kept) > 0 || err != nil {
			return kept, err
		}
	}
}
