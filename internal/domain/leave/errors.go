package leave

import "errors"

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidInput  = errors.New("invalid input")
	ErrStepConflict  = errors.New("step already decided")
	ErrSelfApproval  = errors.New("requester cannot approve own request")
	ErrNotActionable = errors.New("step is not open for action yet")
)
