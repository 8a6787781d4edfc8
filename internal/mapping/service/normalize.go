package service

import (
	"strings"

	"github.com/smallbiznis/domainlink/internal/mapping/domain"
	"golang.org/x/net/idna"
)

// NormalizeDomain reduces operator input to a bare lowercase hostname:
// scheme, path, port and trailing dots are stripped and internationalized
// labels are converted to their ASCII form. The result is validated against
// hostname syntax.
func NormalizeDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", domain.ErrInvalidDomain
	}

	for _, prefix := range []string{"https://", "http://", "//"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", domain.ErrInvalidDomain
	}

	if !validHostname(ascii) {
		return "", domain.ErrInvalidDomain
	}
	return ascii, nil
}

func validHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z':
			case c >= '0' && c <= '9':
			case c == '-':
			default:
				return false
			}
		}
	}
	return true
}
