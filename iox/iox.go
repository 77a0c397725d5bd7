// Package iox holds small cleanup helpers shared by the kernel's
// long-lived resources (session, archive, notifier, sockets).
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and discards the error. Use in defers where a
// close error is unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c, for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(sess))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseAll closes every non-nil closer in order and joins the errors.
// A failing closer does not stop the rest from closing.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
