package types

import "errors"

// Result codes mirror a closed set of error codes. The core never panics on
// a caller error; every fallible operation returns one of these (wrapped in
// a plain error) instead.
var (
	ErrSuccess = error(nil)
	ErrFail = errors.New("o2: fail")
	ErrNotInitialized = errors.New("o2: not initialized")
	ErrBadName = errors.New("o2: bad name")
	ErrBadType = errors.New("o2: bad type")
	ErrNoService = errors.New("o2: no such service")
	ErrServiceExists = errors.New("o2: service already exists")
	ErrServiceConflict = errors.New("o2: service handler conflict")
	ErrInvalidMsg = errors.New("o2: invalid message")
	ErrSocketError = errors.New("o2: socket error")
	ErrBlocked = errors.New("o2: operation would block")
	ErrAlreadyRunning = errors.New("o2: already running")
	ErrTcpHup = errors.New("o2: tcp connection closed by peer")
	ErrHostnameLookupFail = errors.New("o2: hostname lookup failed")
)
