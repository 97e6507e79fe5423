package status

import "errors"

var (
	ErrNotFound  = errors.New("file not found")
	ErrForbidden = errors.New("requester may not view this file")
)
