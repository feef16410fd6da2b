package validate

import (
	"errors"
	"regexp"
	"strings"
)

// Email validation errors
var (
	ErrInvalidEmail = errors.New("invalid email format")
)

// emailPattern covers the common email shapes we accept. Identities are
// verified out of band when a token is issued, so this only needs to catch
// obviously malformed input before it reaches an audit row.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates an identity email address. Identities are recorded on
// audit rows and purchase receipts, so the normalized form (lowercased,
// trimmed) is returned for stable comparison.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" {
		return "", ErrEmpty
	}

	// RFC 5321 caps the overall address at 254 octets.
	if len(email) > 254 {
		return "", ErrStringTooLong
	}

	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}

	at := strings.IndexByte(email, '@')
	localPart, domain := email[:at], email[at+1:]

	// Per-part limits from RFC 5321: 64 octets local, 255 domain.
	if len(localPart) > 64 {
		return "", ErrStringTooLong
	}
	if len(domain) > 255 {
		return "", ErrStringTooLong
	}

	if !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}

	return email, nil
}
