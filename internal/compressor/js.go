package compressor

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/assetpipe/assetctl/internal/config"
)

// builtinTemplateFunc is a micro-templating function compatible with the
// `<% %>` and `<%= %>` template syntax. It is emitted when the configured
// template function is the default one.
const builtinTemplateFunc = `var template = function(str){var fn = new Function('obj', 'var __p=[],print=function(){__p.push.apply(__p,arguments);};with(obj||{}){__p.push(\''+str.replace(/\\/g, '\\\\').replace(/'/g, "\\'").replace(/<%=([\s\S]+?)%>/g,function(match,code){return "',"+code.replace(/\\'/g, "'")+",'";}).replace(/<%([\s\S]+?)%>/g,function(match,code){return "');"+code.replace(/\\'/g, "'").replace(/[\r\n\t]/g,' ')+"__p.push('";}).replace(/\r/g,'\\r').replace(/\n/g,'\\n').replace(/\t/g,'\\t')+"');}return __p.join('');");return fn;};`

// CompressJS concatenates the scripts at paths, appends the compiled
// templates and wraps the result in a function scope unless the wrapper is
// disabled.
func (c *Compressor) CompressJS(ctx context.Context, paths []string, _ string, templates []string) ([]byte, error) {
	content, err := c.concatenate(ctx, paths, "\n;\n", nil)
	if err != nil {
		return nil, err
	}

	if len(templates) > 0 {
		compiled, err := c.CompileTemplates(ctx, templates)
		if err != nil {
			return nil, err
		}
		if len(content) > 0 {
			content = append(content, '\n')
		}
		content = append(content, compiled...)
	}

	if !c.opts.DisableWrapper {
		content = fmt.Appendf(nil, "(function() {\n%s\n}).call(this);", content)
	}

	return c.minify(mediaTypeJS, c.opts.JS, content)
}

// CompileTemplates renders templates as assignments into the template
// namespace. A template is named after its path relative to the deepest
// directory common to all templates, without extension, with "/" replaced by
// the template separator.
func (c *Compressor) CompileTemplates(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s || {};\n", c.opts.TemplateNamespace, c.opts.TemplateNamespace)
	if c.opts.TemplateFunc == config.DefaultTemplateFunc {
		b.WriteString(builtinTemplateFunc)
		b.WriteString("\n")
	}

	base := commonDir(paths)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		content, err := fs.ReadFile(c.fsys, p)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p, err)
		}

		fmt.Fprintf(&b, "%s['%s'] = %s('%s');\n",
			c.opts.TemplateNamespace,
			c.templateName(p, base),
			c.opts.TemplateFunc,
			escapeTemplate(string(content)),
		)
	}

	return b.String(), nil
}

func (c *Compressor) templateName(p, base string) string {
	name := strings.TrimSuffix(p, path.Ext(p))
	if base != "" {
		name = strings.TrimPrefix(name, base+"/")
	}
	return strings.ReplaceAll(name, "/", c.opts.TemplateSeparator)
}

var templateEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	"'", `\'`,
)

func escapeTemplate(s string) string {
	return templateEscaper.Replace(s)
}

// commonDir returns the deepest directory containing every path, or "" when
// they share none.
func commonDir(paths []string) string {
	dir := strings.Split(path.Dir(paths[0]), "/")
	for _, p := range paths[1:] {
		other := strings.Split(path.Dir(p), "/")
		n := 0
		for n < len(dir) && n < len(other) && dir[n] == other[n] {
			n++
		}
		dir = dir[:n]
	}

	base := strings.Join(dir, "/")
	if base == "." {
		return ""
	}
	return base
}
