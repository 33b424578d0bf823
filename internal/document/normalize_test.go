package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = BaseURL{Scheme: "https", Host: "example.com"}

func TestNormalizeAssetURLs_LeavesAbsoluteSources(t *testing.T) {
	inputs := []string{
		`<img src="https://example.com/a.png">`,
		`<p><img src="http://cdn.local/x.png"></p>`,
		`<img src="data:image/png;base64,AAAA">`,
		`<img src="HTTPS://EXAMPLE.COM/a.png">`,
		`<img src="file:///tmp/a.png">`,
	}
	for _, base := range []BaseURL{testBase, {Scheme: "http", Host: "other"}, {}} {
		for _, in := range inputs {
			out, err := NormalizeAssetURLs(in, base)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		}
	}
}

func TestNormalizeAssetURLs_RewritesRootRelative(t *testing.T) {
	out, err := NormalizeAssetURLs(`<img src="/a.png">`, testBase)
	require.NoError(t, err)
	assert.Contains(t, out, `src="https://example.com/a.png"`)
	assert.NotContains(t, out, "<body>")
}

func TestNormalizeAssetURLs_IsIdempotent(t *testing.T) {
	once, err := NormalizeAssetURLs(`<div><img src="/a.png" alt="a"></div>`, testBase)
	require.NoError(t, err)
	twice, err := NormalizeAssetURLs(once, testBase)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeAssetURLs_FullDocument(t *testing.T) {
	in := `<!DOCTYPE html><html><head><title>t</title></head><body><img src="/img/logo.png"><img src="https://x.io/b.png"></body></html>`
	out, err := NormalizeAssetURLs(in, BaseURL{Scheme: "http", Host: "localhost:8080"})
	require.NoError(t, err)
	assert.Contains(t, out, `src="http://localhost:8080/img/logo.png"`)
	assert.Contains(t, out, `src="https://x.io/b.png"`)
	assert.Contains(t, out, "<title>t</title>")
}

func TestNormalizeAssetURLs_FullDocumentAfterLeadingComment(t *testing.T) {
	inputs := []string{
		"<!-- invoice view -->\n<!DOCTYPE html><html><head><title>t</title></head><body><img src=\"/a.png\"></body></html>",
		"\ufeff<!-- a --><!-- b -->\n<HTML><head><title>t</title></head><body><img src=\"/a.png\"></body></HTML>",
	}
	for _, in := range inputs {
		out, err := NormalizeAssetURLs(in, testBase)
		require.NoError(t, err)
		assert.Contains(t, out, "<head><title>t</title></head>")
		assert.Contains(t, out, `<body><img src="https://example.com/a.png"/></body></html>`)
	}

	out, err := NormalizeAssetURLs("<!-- invoice view -->\n<!DOCTYPE html><html><body><img src=\"/a.png\"></body></html>", testBase)
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<!-- invoice view -->")
}

func TestIsFullDocument(t *testing.T) {
	assert.True(t, isFullDocument("<!doctype html><p>x</p>"))
	assert.True(t, isFullDocument("  <!-- x --> <html>"))
	assert.False(t, isFullDocument("<!-- x --><p>x</p>"))
	assert.False(t, isFullDocument("<!-- unterminated <html>"))
	assert.False(t, isFullDocument("<p>x</p>"))
}

func TestNormalizeAssetURLs_OtherSchemesNeedNoBase(t *testing.T) {
	for _, src := range []string{"cid:logo", "blob:https://example.com/1b2c", "mailto:x", "data:image/svg+xml,<svg></svg>"} {
		in := `<img src="` + src + `">`
		out, err := NormalizeAssetURLs(in, BaseURL{})
		require.NoError(t, err, src)
		assert.Equal(t, in, out)
	}
}

func TestNormalizeAssetURLs_RelativeForms(t *testing.T) {
	base := BaseURL{Scheme: "https", Host: "example.com", Path: "/reports/daily"}
	tests := []struct {
		src  string
		want string
	}{
		{"/a.png", "https://example.com/a.png"},
		{"a.png", "https://example.com/reports/a.png"},
		{"../img/a.png", "https://example.com/img/a.png"},
		{"//cdn.example.com/a.png", "https://cdn.example.com/a.png"},
	}
	for _, tc := range tests {
		out, err := NormalizeAssetURLs(`<img src="`+tc.src+`">`, base)
		require.NoError(t, err, tc.src)
		assert.Contains(t, out, `src="`+tc.want+`"`, tc.src)
	}
}

func TestNormalizeAssetURLs_IgnoresOtherElements(t *testing.T) {
	in := `<a href="/x">x</a><script src="/app.js"></script>`
	out, err := NormalizeAssetURLs(in, testBase)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeAssetURLs_UnknownBase(t *testing.T) {
	_, err := NormalizeAssetURLs(`<img src="/a.png">`, BaseURL{Scheme: "https"})
	assert.ErrorIs(t, err, ErrBaseURLUnknown)

	_, err = NormalizeAssetURLs(`<img src="/a.png">`, BaseURL{})
	assert.ErrorIs(t, err, ErrBaseURLUnknown)

	out, err := NormalizeAssetURLs(`<p>no images</p>`, BaseURL{})
	require.NoError(t, err)
	assert.Equal(t, `<p>no images</p>`, out)
}

func TestBaseURLFromString(t *testing.T) {
	b, err := BaseURLFromString("https://example.com/app")
	require.NoError(t, err)
	assert.Equal(t, BaseURL{Scheme: "https", Host: "example.com", Path: "/app"}, b)
	assert.Equal(t, "https://example.com/app", b.String())

	b, err = BaseURLFromString("")
	require.NoError(t, err)
	assert.False(t, b.Known())

	_, err = BaseURLFromString("example.com/app")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
