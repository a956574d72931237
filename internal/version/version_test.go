package version

import (
	"strings"
	"testing"
)

func TestString_IncludesAllParts(t *testing.T) {
	got := String()
	for _, part := range []string{Version, Commit, BuildTime} {
		if !strings.Contains(got, part) {
			t.Errorf("String() = %q, missing %q", got, part)
		}
	}
}
