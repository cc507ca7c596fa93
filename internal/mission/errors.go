package mission

import (
	"errors"
	"fmt"
)

// ParseError reports a structural problem with a mission document.
// Parsing is all-or-nothing: no graph is returned alongside it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "mission parse: " + e.Reason
}

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

var (
	ErrNotChoiceMoment   = errors.New("moment is not a choice moment")
	ErrMomentNotActive   = errors.New("moment has not started")
	ErrUnknownChoice     = errors.New("unknown choice")
	ErrChoiceUnavailable = errors.New("choice was not offered")
)
