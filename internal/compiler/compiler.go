// Package compiler translates individual source files into plain CSS or
// JavaScript before they are bundled.
package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	assetfs "github.com/assetpipe/assetctl/internal/fs"
	"github.com/assetpipe/assetctl/internal/logging"
)

// FileCompiler compiles one kind of source file.
type FileCompiler interface {
	Match(path string) bool
	OutputPath(path string) string
	CompileFile(ctx context.Context, src []byte, path string) ([]byte, error)
}

// CompileError reports diagnostics produced while compiling a file.
type CompileError struct {
	Path     string
	Messages []Message
}

type Message struct {
	File   string
	Line   int
	Column int
	Text   string
}

func (m Message) String() string {
	if m.File == "" {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
}

func (err *CompileError) Error() string {
	if len(err.Messages) == 0 {
		return fmt.Sprintf("compile %s: failed", err.Path)
	}

	msgs := make([]string, len(err.Messages))
	for i, m := range err.Messages {
		msgs[i] = m.String()
	}
	return fmt.Sprintf("compile %s: %s", err.Path, strings.Join(msgs, "; "))
}

// Dispatcher picks the first FileCompiler matching a path, reads the source
// from the source file system and writes the output below the output
// directory. The returned path addresses the output below
// assetfs.CompiledPrefix, so it resolves against the Assets of an
// assetfs.Tree and never shadows a source file. Paths no compiler matches are
// returned as is.
type Dispatcher struct {
	sources   fs.FS
	outDir    string
	compilers []FileCompiler
	log       *logging.Logger
}

func New(sources fs.FS, outDir string) *Dispatcher {
	return &Dispatcher{sources: sources, outDir: outDir, log: logging.NewNopLogger()}
}

func (d *Dispatcher) WithFileCompiler(c FileCompiler) *Dispatcher {
	d.compilers = append(d.compilers, c)
	return d
}

func (d *Dispatcher) WithLogger(l *logging.Logger) *Dispatcher {
	d.log = l
	return d
}

func (d *Dispatcher) Compile(ctx context.Context, path string) (string, error) {
	c := d.match(path)
	if c == nil {
		return path, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := fs.ReadFile(d.sources, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	out, err := c.CompileFile(ctx, src, path)
	if err != nil {
		return "", err
	}

	output := c.OutputPath(path)
	dst := filepath.Join(d.outDir, filepath.FromSlash(output))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := writeFile(dst, out); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}

	d.log.Debugf("Compiled %s to %s", path, output)
	return assetfs.CompiledPath(output), nil
}

// writeFile replaces dst atomically, as bundles sharing a source may compile
// it concurrently.
func writeFile(dst string, content []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dst)
}

func (d *Dispatcher) match(path string) FileCompiler {
	for _, c := range d.compilers {
		if c.Match(path) {
			return c
		}
	}
	return nil
}
