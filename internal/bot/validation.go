package bot

import (
	"regexp"
	"strings"
)

// OAKs are opaque tokens; anything outside this set is user error or
// an injection attempt.
var oakPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	oakMinLength = 10
	oakMaxLength = 64
)

// sanitizeOAK normalizes user-supplied key input
func sanitizeOAK(raw string) string {
	return strings.TrimSpace(raw)
}

// validOAK reports whether the input can plausibly be an Open Access Key
func validOAK(oak string) bool {
	if len(oak) < oakMinLength || len(oak) > oakMaxLength {
		return false
	}
	return oakPattern.MatchString(oak)
}
