package phone

import "github.com/ghettovoice/softphone/internal/errorutil"

const (
	ErrInvalidArgument                 = errorutil.ErrInvalidArgument
	ErrClosed          errorutil.Error = "phone closed"
	ErrNotRegistered   errorutil.Error = "not registered"
	ErrCallInProgress  errorutil.Error = "call in progress"
	ErrNoActiveCall    errorutil.Error = "no active call"
	ErrNoTransport     errorutil.Error = "no transport"
)
