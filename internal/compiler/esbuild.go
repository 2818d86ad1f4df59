package compiler

import (
	"context"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var esbuildLoaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
	".mjs": api.LoaderJS,
}

// ESBuild compiles TypeScript, JSX and ES module sources to JavaScript.
type ESBuild struct {
	Target api.Target
}

func NewESBuild() *ESBuild {
	return &ESBuild{Target: api.ES2017}
}

func (*ESBuild) Match(p string) bool {
	_, ok := esbuildLoaders[path.Ext(p)]
	return ok
}

func (*ESBuild) OutputPath(p string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ".js"
}

func (e *ESBuild) CompileFile(_ context.Context, src []byte, p string) ([]byte, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:     esbuildLoaders[path.Ext(p)],
		Sourcefile: p,
		Target:     e.Target,
	})

	if len(result.Errors) > 0 {
		err := &CompileError{Path: p}
		for _, m := range result.Errors {
			msg := Message{Text: m.Text}
			if m.Location != nil {
				msg.File = m.Location.File
				msg.Line = m.Location.Line
				msg.Column = m.Location.Column
			}
			err.Messages = append(err.Messages, msg)
		}
		return nil, err
	}

	return result.Code, nil
}
