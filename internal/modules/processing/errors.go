package processing

import "errors"

var (
	ErrUnknownFile          = errors.New("callback references an unknown file")
	ErrInvalidCallbackState = errors.New("file is not awaiting a worker callback")
	ErrAlreadyDispatched    = errors.New("file was already dispatched")
	ErrUnsupportedMedia     = errors.New("unsupported media type for processing")
	ErrExternalDispatch     = errors.New("failed to submit job to external worker")
)
