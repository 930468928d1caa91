package error

import "errors"

var (
	ErrContextAlreadyBound = errors.New("execution context already has a debugger bound")
	ErrContextClosed       = errors.New("execution context is closed")
	ErrInvalidMessage      = errors.New("invalid protocol message")
	ErrCallFrameNotFound   = errors.New("could not find call frame with given id")
	ErrObjectNotFound      = errors.New("could not find object with given id")
	ErrNotPaused           = errors.New("can only perform operation while paused")
	ErrHostClosed          = errors.New("host is closed")
	ErrHostNotRunning      = errors.New("host is not running")
)
