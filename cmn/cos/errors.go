// Package cos provides the small set of typed errors shared across the
// Data Server's packages, the way the teacher's cmn/cos carries
// ErrNotFound et al. for the whole of aistore.
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Typed error kinds from spec §7. Each maps 1:1 onto a server- or
// client-side failure mode that terminates a connection (Malformed,
// Timeout, PeerClosed, DuplicateSource, UnknownMetadataOnSinkResponse)
// or a diff fallback (DiffFailure).
type (
	ErrMalformed struct{ Detail string }
	ErrTimeout   struct{ Op string }
	ErrPeerClosed struct{}
	ErrDuplicateSource struct{ Dataset string }
	ErrUnknownMetadata struct{ Tag byte }
	ErrDiffFailure struct{ Cause error }
)

func (e *ErrMalformed) Error() string { return fmt.Sprintf("malformed frame: %s", e.Detail) }
func (e *ErrTimeout) Error() string   { return fmt.Sprintf("timeout during %s", e.Op) }
func (*ErrPeerClosed) Error() string  { return "peer closed connection" }
func (e *ErrDuplicateSource) Error() string {
	return fmt.Sprintf("dataset %q already has a source", e.Dataset)
}
func (e *ErrUnknownMetadata) Error() string {
	return fmt.Sprintf("unknown metadata tag 0x%02x", e.Tag)
}
func (e *ErrDiffFailure) Error() string { return fmt.Sprintf("diff worker failure: %v", e.Cause) }

func IsTimeout(err error) bool {
	_, ok := err.(*ErrTimeout)
	return ok
}

func IsPeerClosed(err error) bool {
	_, ok := err.(*ErrPeerClosed)
	return ok
}

// Wrap annotates err with msg while preserving it for errors.Is/As,
// the way the teacher's cmn/cos leans on github.com/pkg/errors rather
// than hand-rolled wrapping throughout the codebase.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
