// Package iox holds cleanup helpers for ports, recorders, and loggers whose
// close errors nothing can act on.
package iox

import "io"

// DiscardClose closes c and drops the error.
//
//	defer iox.DiscardClose(instrument)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(port))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops the error. Used for logger.Sync, which
// fails on terminals.
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
