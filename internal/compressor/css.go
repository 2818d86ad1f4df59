package compressor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	assetfs "github.com/assetpipe/assetctl/internal/fs"
)

var urlPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+?)(['"]?)\s*\)`)

// CompressCSS concatenates the stylesheets at paths. Relative url()
// references are resolved against the referencing file and rewritten to
// absolute URLs, or to URLs relative to assetURL when absolutePaths is
// false. The "datauri" variant embeds small images instead.
func (c *Compressor) CompressCSS(ctx context.Context, paths []string, assetURL string, variant string, absolutePaths bool) ([]byte, error) {
	if variant != "" && variant != VariantDataURI {
		return nil, fmt.Errorf("unknown css variant %q", variant)
	}

	content, err := c.concatenate(ctx, paths, "\n", func(p string, content []byte) ([]byte, error) {
		return c.rewriteURLs(p, content, assetURL, variant, absolutePaths)
	})
	if err != nil {
		return nil, err
	}

	return c.minify(mediaTypeCSS, c.opts.CSS, content)
}

func (c *Compressor) rewriteURLs(p string, content []byte, assetURL, variant string, absolutePaths bool) ([]byte, error) {
	var rerr error

	out := urlPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		sub := urlPattern.FindSubmatch(match)
		open, ref, closing := string(sub[1]), strings.TrimSpace(string(sub[2])), string(sub[3])

		if !isRelative(ref) {
			return match
		}

		target, suffix := ref, ""
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			target, suffix = ref[:i], ref[i:]
		}
		target = path.Join(path.Dir(assetfs.SourcePath(p)), target)

		if variant == VariantDataURI {
			uri, ok, err := c.dataURI(target)
			if err != nil {
				rerr = err
				return match
			}
			if ok {
				return fmt.Appendf(nil, "url(%s%s%s)", open, uri, closing)
			}
		}

		u := c.urlFor(target)
		if !absolutePaths {
			u = relativeURL(assetURL, u)
		}
		return fmt.Appendf(nil, "url(%s%s%s%s)", open, u, suffix, closing)
	})

	return out, rerr
}

func isRelative(ref string) bool {
	for _, prefix := range []string{"data:", "http:", "https:", "//", "/", "#"} {
		if strings.HasPrefix(ref, prefix) {
			return false
		}
	}
	return ref != ""
}

// dataURI embeds the file at p if it lives below the embed path, has a known
// media type and is no larger than the configured limit.
func (c *Compressor) dataURI(p string) (string, bool, error) {
	if !c.embedPath.MatchString(p) {
		return "", false, nil
	}

	mediaType := mime.TypeByExtension(path.Ext(p))
	if mediaType == "" {
		return "", false, nil
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}

	info, err := fs.Stat(c.fsys, p)
	if err != nil {
		return "", false, fmt.Errorf("embed %s: %w", p, err)
	}
	if info.Size() > c.opts.EmbedMaxImageSize {
		return "", false, nil
	}

	data, err := fs.ReadFile(c.fsys, p)
	if err != nil {
		return "", false, fmt.Errorf("embed %s: %w", p, err)
	}

	return fmt.Sprintf("data:%s;charset=utf-8;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)), true, nil
}

// relativeURL expresses target relative to the directory of base. Targets on
// another origin are returned unchanged.
func relativeURL(base, target string) string {
	b, err := url.Parse(base)
	if err != nil {
		return target
	}
	t, err := url.Parse(target)
	if err != nil || b.Scheme != t.Scheme || b.Host != t.Host {
		return target
	}
	if !strings.HasPrefix(b.Path, "/") || !strings.HasPrefix(t.Path, "/") {
		return target
	}

	from := strings.Split(strings.TrimSuffix(path.Dir(b.Path), "/"), "/")
	to := strings.Split(t.Path, "/")

	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}

	rel := strings.Repeat("../", len(from)-i) + strings.Join(to[i:], "/")
	if t.RawQuery != "" {
		rel += "?" + t.RawQuery
	}
	return rel
}
