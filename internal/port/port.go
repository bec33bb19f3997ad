// Package port finds free local TCP ports for tunnel endpoints.
package port

import (
	"fmt"
	"net"
	"strconv"
)

// LoopbackHost is the only interface tunnel endpoints are ever bound to.
const LoopbackHost = "127.0.0.1"

// AllocationError reports that no local port could be obtained.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("port allocation failed: %v", e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// listen is swapped out in tests.
var listen = net.Listen

// Allocate returns a local port that was free at the time of the call.
// The port is released before returning, so the caller must bind it quickly.
func Allocate() (int, error) {
	return AllocatePreferred(0)
}

// AllocatePreferred tries the preferred port first and falls back to an
// ephemeral one. A preferred value of 0 means no preference.
func AllocatePreferred(preferred int) (int, error) {
	if preferred > 0 {
		if p, err := probe(preferred); err == nil {
			return p, nil
		}
	}
	p, err := probe(0)
	if err != nil {
		return 0, &AllocationError{Err: err}
	}
	return p, nil
}

func probe(p int) (int, error) {
	ln, err := listen("tcp", net.JoinHostPort(LoopbackHost, strconv.Itoa(p)))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		return 0, fmt.Errorf("unexpected listener address %v", ln.Addr())
	}
	return addr.Port, nil
}
