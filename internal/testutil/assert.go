package testutil

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertEqualSlices fails the test when got differs from want. A nil slice
// equals an empty one.
func AssertEqualSlices[T comparable](t *testing.T, got []T, want ...T) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}
}

// AssertStrings is AssertEqualSlices for strings, kept for call sites that
// build their expectations from command output.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	AssertEqualSlices(t, got, want...)
}

// AssertContainsAll fails the test for every sub missing from got.
func AssertContainsAll(t *testing.T, got string, subs []string) {
	t.Helper()
	var missing []string
	for _, sub := range subs {
		if !strings.Contains(got, sub) {
			missing = append(missing, sub)
		}
	}
	if len(missing) > 0 {
		t.Errorf("output is missing %q:\n%s", missing, got)
	}
}

// MustNoErr stops the test when err is set; msg names the step that failed.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
