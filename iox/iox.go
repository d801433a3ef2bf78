// Package iox holds cleanup helpers for closers whose errors nobody can act
// on: the uploaded file after a session, an adapter client on exit, a test
// channel.
package iox

import "io"

// DiscardClose closes c and drops the error.
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(ch))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops the error. Used for Sync and Flush calls:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
