package promptchain

import (
	"fmt"
	"strings"
)

// maxNameLen bounds template names and ids used in paths and cache keys.
const maxNameLen = 128

// ValidateID checks that a registry id is safe for use in paths and cache keys:
// non-empty, at most 128 bytes, letters, digits, '-', '_', '.' and '/' only, with no
// ".." segment and no leading '/'.
func ValidateID(id string) error {
	if id == "" || len(id) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, id)
	}
	if strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, id)
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidName, id)
		}
	}
	for _, r := range id {
		if !isNameRune(r) && r != '/' {
			return fmt.Errorf("%w: %q", ErrInvalidName, id)
		}
	}
	return nil
}

// ValidateName checks a template name and an optional environment. Neither may contain
// path separators; env may be empty.
func ValidateName(name, env string) error {
	if err := validateSegment(name); err != nil {
		return err
	}
	if env == "" {
		return nil
	}
	return validateSegment(env)
}

func validateSegment(s string) error {
	if s == "" || len(s) > maxNameLen || s == "." || s == ".." || strings.HasPrefix(s, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	for _, r := range s {
		if !isNameRune(r) {
			return fmt.Errorf("%w: %q", ErrInvalidName, s)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	return r == '-' || r == '_' || r == '.' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
