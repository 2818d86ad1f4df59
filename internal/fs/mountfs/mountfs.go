// Parts of this are based on testing/fstest, go1.25.2:
// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mountfs composes file systems by mounting them below path prefixes,
// e.g. a vendor asset directory under "vendor/" of the source tree.
package mountfs

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// A MountFS maps mount points to the file systems served below them. Parent
// directories of mount points are synthesized. When mount points nest, the
// longest one serving a path wins.
//
// The map must not be changed while the MountFS is in use.
type MountFS map[string]fs.FS

var (
	_ fs.ReadDirFS = MountFS(nil)
	_ fs.StatFS    = MountFS(nil)
)

func New(m map[string]fs.FS) MountFS {
	return m
}

// resolve returns the file system serving name and the name relative to it.
func (fsys MountFS) resolve(name string) (fs.FS, string, bool) {
	var (
		best   string
		found  bool
		target fs.FS
	)
	for mnt, f := range fsys {
		if name != mnt && !strings.HasPrefix(name, mnt+"/") && mnt != "." {
			continue
		}
		if !found || len(mnt) > len(best) {
			best, target, found = mnt, f, true
		}
	}
	if !found {
		return nil, "", false
	}
	switch {
	case best == name:
		return target, ".", true
	case best == ".":
		return target, name, true
	default:
		return target, name[len(best)+1:], true
	}
}

// children lists the synthesized directory entries directly below dir.
func (fsys MountFS) children(dir string) []fs.DirEntry {
	seen := map[string]bool{}
	prefix := dir + "/"
	if dir == "." {
		prefix = ""
	}
	for mnt := range fsys {
		if mnt == "." || !strings.HasPrefix(mnt, prefix) {
			continue
		}
		rest := mnt[len(prefix):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}

	list := make([]fs.DirEntry, 0, len(seen))
	for name := range seen {
		list = append(list, dirInfo{name: name})
	}
	slices.SortFunc(list, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return list
}

func (fsys MountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if target, rest, ok := fsys.resolve(name); ok {
		if rest == "." {
			return &mountDir{dirInfo: dirInfo{name: path.Base(name)}, fsys: target}, nil
		}
		return target.Open(rest)
	}

	entries := fsys.children(name)
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &syntheticDir{dirInfo: dirInfo{name: path.Base(name)}, entries: entries}, nil
}

func (fsys MountFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if target, rest, ok := fsys.resolve(name); ok {
		return fs.ReadDir(target, rest)
	}

	entries := fsys.children(name)
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

func (fsys MountFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if target, rest, ok := fsys.resolve(name); ok {
		if rest == "." {
			return dirInfo{name: path.Base(name)}, nil
		}
		return fs.Stat(target, rest)
	}

	if len(fsys.children(name)) == 0 && name != "." {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return dirInfo{name: path.Base(name)}, nil
}

// dirInfo implements fs.FileInfo and fs.DirEntry for mount points and
// synthesized directories.
type dirInfo struct {
	name string
}

func (i dirInfo) Name() string               { return i.name }
func (dirInfo) Size() int64                  { return 0 }
func (dirInfo) Mode() fs.FileMode            { return fs.ModeDir | 0o555 }
func (dirInfo) Type() fs.FileMode            { return fs.ModeDir }
func (dirInfo) ModTime() time.Time           { return time.Time{} }
func (dirInfo) IsDir() bool                  { return true }
func (dirInfo) Sys() any                     { return nil }
func (i dirInfo) Info() (fs.FileInfo, error) { return i, nil }

func (i dirInfo) String() string {
	return fs.FormatFileInfo(i)
}

type syntheticDir struct {
	dirInfo
	entries []fs.DirEntry
	offset  int
}

func (d *syntheticDir) Stat() (fs.FileInfo, error) { return d.dirInfo, nil }
func (*syntheticDir) Close() error                 { return nil }
func (d *syntheticDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *syntheticDir) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(d.entries) - d.offset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := slices.Clone(d.entries[d.offset : d.offset+n])
	d.offset += n
	return list, nil
}

type mountDir struct {
	dirInfo
	fsys    fs.FS
	entries []fs.DirEntry
	read    bool
}

func (d *mountDir) Stat() (fs.FileInfo, error) { return d.dirInfo, nil }
func (*mountDir) Close() error                 { return nil }
func (d *mountDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *mountDir) ReadDir(count int) ([]fs.DirEntry, error) {
	if !d.read {
		entries, err := fs.ReadDir(d.fsys, ".")
		if err != nil {
			return nil, err
		}
		d.entries, d.read = entries, true
	}
	if count <= 0 {
		list := d.entries
		d.entries = nil
		return list, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n := min(count, len(d.entries))
	list := d.entries[:n]
	d.entries = d.entries[n:]
	return list, nil
}
