// Package testutil provides test helpers for leadvault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - builders.go: lead builders and fixed clocks
//   - fs_helpers.go: filesystem helpers (MustExist, ReadFile, ListDir)
//   - logger.go: quiet loggers for packages that take *slog.Logger
//   - store_helpers.go: temporary account stores
package testutil
