package command

import "errors"

// ErrNoChannel is reported to OnDrop when no channel is attached.
var ErrNoChannel = errors.New("command: no channel attached")
