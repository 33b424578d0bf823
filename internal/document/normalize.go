package document

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BaseURL is the scheme and host the current request was served from. Path
// is used for path-relative references and defaults to "/".
type BaseURL struct {
	Scheme string
	Host   string
	Path   string
}

// BaseURLFromString parses "scheme://host[/path]".
func BaseURLFromString(raw string) (BaseURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return BaseURL{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return BaseURL{}, fmt.Errorf("%w: base url %q: %v", ErrInvalidArgument, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return BaseURL{}, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidArgument, raw)
	}
	return BaseURL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}, nil
}

// Known reports whether both scheme and host are set.
func (b BaseURL) Known() bool {
	return b.Scheme != "" && b.Host != ""
}

func (b BaseURL) String() string {
	if !b.Known() {
		return ""
	}
	return (&url.URL{Scheme: b.Scheme, Host: b.Host, Path: b.Path}).String()
}

func (b BaseURL) resolve(src string) (string, error) {
	if !b.Known() {
		return "", fmt.Errorf("%w: cannot resolve %q", ErrBaseURLUnknown, src)
	}
	if strings.HasPrefix(src, "//") {
		return b.Scheme + ":" + src, nil
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	path := b.Path
	if path == "" {
		path = "/"
	}
	base := &url.URL{Scheme: b.Scheme, Host: b.Host, Path: path}
	return base.ResolveReference(ref).String(), nil
}

// isAbsoluteURL reports whether src carries its own scheme (http:, data:,
// cid:, blob:, ...) and so needs no base.
func isAbsoluteURL(src string) bool {
	if strings.HasPrefix(src, "//") {
		return false
	}
	ref, err := url.Parse(src)
	if err == nil {
		return ref.IsAbs()
	}
	// data: URLs with unescaped payloads may not parse; the scheme still decides.
	if i := strings.IndexByte(src, ':'); i > 0 {
		return isScheme(src[:i])
	}
	return false
}

func isScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// NormalizeAssetURLs rewrites every relative <img src> to an absolute URL
// built from base. Absolute sources are left alone, and if nothing needs
// rewriting the input is returned as is. A relative source with an unknown
// base fails with ErrBaseURLUnknown.
func NormalizeAssetURLs(htmlContent string, base BaseURL) (string, error) {
	if !strings.Contains(strings.ToLower(htmlContent), "<img") {
		return htmlContent, nil
	}

	doc, isFragment, err := parseHTML(htmlContent)
	if err != nil {
		return "", err
	}

	changed, err := rewriteImages(doc, base)
	if err != nil {
		return "", err
	}
	if changed == 0 {
		return htmlContent, nil
	}
	return renderHTML(doc, isFragment)
}

func rewriteImages(n *html.Node, base BaseURL) (int, error) {
	changed := 0
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		for i, attr := range n.Attr {
			if attr.Key != "src" {
				continue
			}
			src := strings.TrimSpace(attr.Val)
			if src == "" || isAbsoluteURL(src) {
				continue
			}
			abs, err := base.resolve(src)
			if err != nil {
				return changed, err
			}
			n.Attr[i].Val = abs
			changed++
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count, err := rewriteImages(c, base)
		changed += count
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// parseHTML parses a full document or a body fragment. The bool result is
// true for fragments.
func parseHTML(content string) (*html.Node, bool, error) {
	if isFullDocument(content) {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	body := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Body,
		Data:     "body",
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}
	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, true, nil
}

// isFullDocument reports whether content opens with a doctype or <html>
// element once a BOM, whitespace and comments are skipped.
func isFullDocument(content string) bool {
	rest := strings.TrimPrefix(content, "\ufeff")
	for {
		rest = strings.TrimLeft(rest, " \t\r\n\f")
		if !strings.HasPrefix(rest, "<!--") {
			break
		}
		end := strings.Index(rest[4:], "-->")
		if end == -1 {
			return false
		}
		rest = rest[4+end+3:]
	}
	return hasPrefixFold(rest, "<!doctype") || hasPrefixFold(rest, "<html")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder
	if !isFragment {
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
