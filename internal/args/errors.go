package args

import "fmt"

// UnsupportedAddressingError is returned when a tunnel is requested for a
// target whose real host cannot be substituted on the command line.
type UnsupportedAddressingError struct {
	Mode   Mode
	Value  string
	Reason string
}

func (e *UnsupportedAddressingError) Error() string {
	msg := fmt.Sprintf("cannot tunnel a %s target", e.Mode)
	if e.Value != "" {
		msg += fmt.Sprintf(" (%s)", e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// UsageError is a malformed wrapper or connection argument.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }
