package idgen

import "github.com/google/uuid"

// NewFunc produces identifiers for time-log entries and queue messages.
// Tests can replace it to obtain predictable ids.
var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }
