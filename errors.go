package indexmerge

import (
	"errors"
	"fmt"

	"github.com/hupe1980/indexmerge/status"
)

var (
	// ErrEmptyPlan is returned when a plan names no index to merge.
	ErrEmptyPlan = errors.New("plan has no index to merge")
)

// MergeError reports which index merger failed.
//
// The underlying error can be accessed via errors.Unwrap; its status kind
// is preserved, so errors.Is(err, status.ErrCorruption) still works.
type MergeError struct {
	Index string
	Kind  string
	cause error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s %q: %v", e.Kind, e.Index, e.cause)
}

func (e *MergeError) Unwrap() error { return e.cause }

func newMergeError(t *task, err error) error {
	if err == nil {
		return nil
	}
	var me *MergeError
	if errors.As(err, &me) {
		return err
	}
	return &MergeError{Index: t.name, Kind: t.kind, cause: err}
}

// IsRetryable reports whether a failed run may succeed when repeated with
// the same plan. Corrupt input and invalid plans fail the same way again.
func IsRetryable(err error) bool {
	switch status.Kind(err) {
	case status.ErrCorruption, status.ErrInvalidArgs, status.ErrUnimplemented:
		return false
	}
	return err != nil
}
