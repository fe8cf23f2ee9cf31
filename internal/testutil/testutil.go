// Package testutil provides test helpers for msgscroll tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertEqualSlices, etc.)
//   - store_helpers.go: database test setup (NewTestStore, NewSeededStore)
//   - fs_helpers.go: filesystem operations (WriteFile, MustExist)
//   - builders.go: message builders for store tests
package testutil
