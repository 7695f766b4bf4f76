package callback

const maxScopeTokenLen = 128

// validScopeToken reports whether s is a scope-token as defined by
// RFC 6749 section 3.3: printable ASCII except space, '"' and '\'.
func validScopeToken(s string) bool {
	if s == "" || len(s) > maxScopeTokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}
