// Package redirect valida URLs de redirect contra la allowlist de una tenancy.
package redirect

import (
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// Policy es la allowlist efectiva de una tenancy.
type Policy struct {
	TrustedDomains   []string
	AllowLocalhost   bool
	NativeAppSchemes []string
}

// ForTenancy construye la política desde el snapshot de la tenancy.
func ForTenancy(t *tenancy.Tenancy) Policy {
	return Policy{
		TrustedDomains:   t.TrustedDomains,
		AllowLocalhost:   t.AllowLocalhost,
		NativeAppSchemes: t.NativeAppSchemes,
	}
}

// schemes que nunca se aceptan como redirect de app nativa.
var forbiddenSchemes = []string{"javascript", "data", "file", "vbscript", "blob", "about"}

// IsAllowlisted reporta si rawURL es http(s) y coincide con un trusted domain
// (o es localhost y la tenancy lo permite).
func (p Policy) IsAllowlisted(rawURL string) bool {
	u, ok := parseWebURL(rawURL)
	if !ok {
		return false
	}
	if p.AllowLocalhost && isLocalhost(u.Hostname()) {
		return true
	}
	for _, pattern := range p.TrustedDomains {
		if matchPattern(pattern, u) {
			return true
		}
	}
	return false
}

// IsAcceptedNativeAppURL reporta si rawURL usa un scheme custom de app
// nativa: reverse-DNS (contiene un punto, ej. com.example.app://) o
// declarado en native_app_schemes.
func (p Policy) IsAcceptedNativeAppURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" || slices.Contains(forbiddenSchemes, scheme) {
		return false
	}
	if strings.Contains(scheme, ".") {
		return true
	}
	return slices.ContainsFunc(p.NativeAppSchemes, func(s string) bool {
		return strings.EqualFold(s, scheme)
	})
}

func parseWebURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" || u.User != nil {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	default:
		return nil, false
	}
}

// matchPattern compara u contra un trusted domain de la forma
// scheme://host[:port][/path]. En el host, "*" cubre exactamente una
// etiqueta y "**" una o más.
func matchPattern(pattern string, u *url.URL) bool {
	scheme, rest, ok := strings.Cut(pattern, "://")
	if !ok || !strings.EqualFold(scheme, u.Scheme) {
		return false
	}

	hostPort, path, _ := strings.Cut(rest, "/")
	hostPattern, portPattern := hostPort, ""
	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		hostPattern, portPattern = h, p
	}

	if effectivePort(portPattern, scheme) != effectivePort(u.Port(), u.Scheme) {
		return false
	}
	if !matchHost(strings.ToLower(hostPattern), strings.ToLower(u.Hostname())) {
		return false
	}
	return matchPath("/"+path, u.EscapedPath())
}

func effectivePort(port, scheme string) string {
	if port != "" {
		return port
	}
	if strings.EqualFold(scheme, "http") {
		return "80"
	}
	return "443"
}

func matchHost(pattern, host string) bool {
	return matchLabels(strings.Split(pattern, "."), strings.Split(host, "."))
}

func matchLabels(pattern, host []string) bool {
	if len(pattern) == 0 {
		return len(host) == 0
	}
	switch pattern[0] {
	case "**":
		for i := 1; i <= len(host); i++ {
			if matchLabels(pattern[1:], host[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(host) > 0 && host[0] != "" && matchLabels(pattern[1:], host[1:])
	default:
		return len(host) > 0 && pattern[0] == host[0] && matchLabels(pattern[1:], host[1:])
	}
}

// matchPath exige que path esté bajo prefix, respetando límites de segmento.
func matchPath(prefix, path string) bool {
	if prefix == "/" || prefix == "" {
		return true
	}
	if path == "" {
		path = "/"
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		host == "::1" ||
		strings.HasPrefix(host, "127.")
}
