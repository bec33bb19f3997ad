package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReady is wrapped by StartError when the readiness deadline passes.
var ErrNotReady = errors.New("tunnel did not become ready in time")

// ErrExited is wrapped by StartError when the forwarder dies before it is ready.
var ErrExited = errors.New("ssh exited before the tunnel was ready")

// StartError reports a tunnel that could not be established. Stderr holds
// whatever diagnostic output the forwarder produced.
type StartError struct {
	Bastion string
	Stderr  string
	Err     error
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("ssh tunnel via %s failed: %v", e.Bastion, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *StartError) Unwrap() error { return e.Err }
