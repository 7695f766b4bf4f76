package redirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowlisted(t *testing.T) {
	p := Policy{
		TrustedDomains: []string{
			"https://app.example.com",
			"https://*.example.org",
			"https://**.example.net",
			"https://docs.example.io/cb",
			"http://intranet.example.com:8080",
		},
	}

	cases := []struct {
		url  string
		want bool
	}{
		{"https://app.example.com/cb", true},
		{"https://app.example.com:443/cb", true},
		{"http://app.example.com/cb", false},
		{"https://evil.com/cb", false},
		{"https://app.example.com.evil.com/cb", false},
		{"https://user@app.example.com/cb", false},
		{"https://a.example.org/", true},
		{"https://a.b.example.org/", false},
		{"https://example.org/", false},
		{"https://a.b.example.net/", true},
		{"https://a.example.net/", true},
		{"https://example.net/", false},
		{"https://docs.example.io/cb", true},
		{"https://docs.example.io/cb/next", true},
		{"https://docs.example.io/cbx", false},
		{"https://docs.example.io/", false},
		{"http://intranet.example.com:8080/x", true},
		{"http://intranet.example.com/x", false},
		{"/relative/path", false},
		{"not a url", false},
		{"", false},
		{"http://localhost:3000/cb", false},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, tc.want, p.IsAllowlisted(tc.url))
		})
	}
}

func TestIsAllowlistedLocalhostToggle(t *testing.T) {
	p := Policy{AllowLocalhost: true}
	assert.True(t, p.IsAllowlisted("http://localhost:3000/cb"))
	assert.True(t, p.IsAllowlisted("http://127.0.0.1/cb"))
	assert.True(t, p.IsAllowlisted("http://app.localhost/cb"))
	assert.False(t, p.IsAllowlisted("http://localhost.evil.com/cb"))
}

func TestIsAcceptedNativeAppURL(t *testing.T) {
	p := Policy{NativeAppSchemes: []string{"myapp"}}

	assert.True(t, p.IsAcceptedNativeAppURL("com.example.app://oauth/cb"))
	assert.True(t, p.IsAcceptedNativeAppURL("myapp://cb"))
	assert.True(t, p.IsAcceptedNativeAppURL("MyApp://cb"))
	assert.False(t, p.IsAcceptedNativeAppURL("otherapp://cb"))
	assert.False(t, p.IsAcceptedNativeAppURL("https://app.example.com"))
	assert.False(t, p.IsAcceptedNativeAppURL("javascript:alert(1)"))
	assert.False(t, p.IsAcceptedNativeAppURL("data:text/html,hi"))
	assert.False(t, p.IsAcceptedNativeAppURL("no-scheme"))
}
