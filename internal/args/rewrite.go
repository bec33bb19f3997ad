package args

import (
	"strconv"

	"github.com/arung-agamani/pgtun/internal/port"
)

// CheckTunnelable returns an *UnsupportedAddressingError when t cannot be
// reached through a local forward.
func CheckTunnelable(t Target) error {
	switch t.Mode() {
	case ModeService:
		return &UnsupportedAddressingError{Mode: ModeService, Value: t.Service,
			Reason: "the host comes from the service file; pass -h/--host explicitly"}
	case ModeAlias:
		return &UnsupportedAddressingError{Mode: ModeAlias, Value: t.DSNAlias,
			Reason: "the alias does not resolve to a connection string; pass -h/--host explicitly"}
	}
	if t.MultiHost() {
		return &UnsupportedAddressingError{Mode: ModeHost, Value: t.Host,
			Reason: "multiple hosts cannot share one tunnel"}
	}
	if t.SocketPath() {
		return &UnsupportedAddressingError{Mode: ModeHost, Value: t.Host,
			Reason: "unix-domain sockets cannot be forwarded"}
	}
	return nil
}

// Rewrite returns tokens pointed at the local tunnel endpoint. A localPort of
// 0 means no tunnel and returns the tokens unchanged. Tokens that do not carry
// a host or port are preserved byte for byte and in order.
func Rewrite(tool Tool, tokens []string, dsnAlias string, localPort int) ([]string, error) {
	out := append([]string(nil), tokens...)
	if localPort == 0 {
		return out, nil
	}

	t, err := Parse(tool, tokens, dsnAlias)
	if err != nil {
		return nil, err
	}
	if err := CheckTunnelable(t); err != nil {
		return nil, err
	}

	host := port.LoopbackHost
	portStr := strconv.Itoa(localPort)
	hasHost, hasPort := false, false

	occs, terminator := scan(tool, tokens)
	// Superseded -d values are still rewritten but do not count as
	// supplying a host or port.
	applied := map[int]bool{}
	for _, o := range effective(occs) {
		applied[o.index] = true
	}
	for _, o := range occs {
		switch o.role {
		case roleHost:
			out[o.index] = o.render(host)
			hasHost = true
		case rolePort:
			out[o.index] = o.render(portStr)
			hasPort = true
		case roleConnString:
			cs, _ := ParseConnString(o.value)
			if cs == nil {
				continue
			}
			out[o.index] = o.render(cs.WithEndpoint(host, portStr))
			if !applied[o.index] {
				continue
			}
			if _, ok := cs.Get("host"); ok {
				hasHost = true
			}
			if _, ok := cs.Get("hostaddr"); ok {
				hasHost = true
			}
			if _, ok := cs.Get("port"); ok {
				hasPort = true
			}
			if cs.uri && len(cs.hosts) > 0 {
				hasPort = true
			}
		}
	}

	var extra []string
	if !hasHost {
		extra = append(extra, "-h", host)
	}
	if !hasPort {
		extra = append(extra, "-p", portStr)
	}
	if len(extra) == 0 {
		return out, nil
	}
	if terminator < 0 {
		return append(out, extra...), nil
	}
	// Options must stay in front of "--".
	merged := make([]string, 0, len(out)+len(extra))
	merged = append(merged, out[:terminator]...)
	merged = append(merged, extra...)
	return append(merged, out[terminator:]...), nil
}
