package worker

import "errors"

// ErrUnknownKind is returned for events whose kind no worker handles.
var ErrUnknownKind = errors.New("unknown event kind")
