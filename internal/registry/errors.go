package registry

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("invalid device id or activation code")
	ErrOwnershipConflict = errors.New("device is already connected to another user")
	ErrDuplicateCode     = errors.New("activation code already in use")
	ErrDuplicateID       = errors.New("device id already exists")
	ErrUnowned           = errors.New("device has no owner")
	ErrContention        = errors.New("device is being modified concurrently, retry")
)
