package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeOAK(t *testing.T) {
	require.Equal(t, "oak_abc123", sanitizeOAK("  oak_abc123\n"))
	require.Equal(t, "oak_abc123", sanitizeOAK("oak_abc123"))
}

func TestValidOAK(t *testing.T) {
	tests := []struct {
		name string
		oak  string
		want bool
	}{
		{"typical key", "oak_62motc1p0hm3sdfuqkzs", true},
		{"minimum length", strings.Repeat("a", 10), true},
		{"too short", "oak_abc", false},
		{"too long", strings.Repeat("a", 65), false},
		{"empty", "", false},
		{"embedded space", "oak_62motc 1p0hm3", false},
		{"url injection", "oak_abc/../../etc", false},
		{"query injection", "oak_abc?admin=1", false},
		{"underscore and dash ok", "oak_a1-b2_c3-d4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, validOAK(tt.oak))
		})
	}
}
