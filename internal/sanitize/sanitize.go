// Package sanitize normalizes the user supplied parts of an attestation
// (domains and paths) and inspects attested pages for the consent marker.
package sanitize

import (
	"regexp"
	"strings"
)

// Error describes why a value was refused.
type Error struct {
	Field   string
	Value   string
	Message string
}

func (e *Error) Error() string { return e.Field + ": " + e.Message }

var (
	domainChars = regexp.MustCompile(`^[a-z0-9.-]*$`)
	pathChars   = regexp.MustCompile(`^[a-zA-Z0-9/_-]*$`)
	slashRuns   = regexp.MustCompile(`/{2,}`)
)

// ValidateDomainName lower-cases and trims raw. The result must be exactly
// two non-empty dot separated labels made of [a-z0-9.-] that neither start
// nor end with a hyphen. No DNS lookup is made.
func ValidateDomainName(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))

	labels := strings.Split(domain, ".")
	if len(labels) != 2 || labels[0] == "" || labels[1] == "" {
		return "", &Error{Field: "domain", Value: raw, Message: "Invalid domain name"}
	}
	if !domainChars.MatchString(domain) || strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
		return "", &Error{Field: "domain", Value: raw, Message: "Invalid domain name"}
	}
	return domain, nil
}

// ValidatePath trims raw, collapses repeated slashes and strips the leading
// and trailing slash. The empty path (site root) is valid.
func ValidatePath(raw string) (string, error) {
	path := slashRuns.ReplaceAllString(strings.TrimSpace(raw), "/")
	path = strings.Trim(path, "/")
	if !pathChars.MatchString(path) {
		return "", &Error{Field: "path", Value: raw, Message: "Invalid path"}
	}
	return path, nil
}
