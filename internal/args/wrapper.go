package args

import (
	"fmt"
	"strconv"
	"strings"
)

// Wrapper holds the flags pgtun adds on top of the dump tool's own.
type Wrapper struct {
	// Tunnel is set by --ssh-tunnel with or without a URL.
	Tunnel      bool
	SSHTunnel   string // [ssh://][user[:password]@]host[:port]
	SSHHost     string
	SSHUser     string
	SSHPort     int
	SSHIdentity string
	SSHBackend  string

	DSN            string
	DSNInteractive bool // --dsn given without a value
	ListDSN        bool
	Debug          bool
}

// TunnelRequested reports whether the command line asks for a tunnel.
func (w Wrapper) TunnelRequested() bool {
	return w.Tunnel || w.SSHTunnel != "" || w.SSHHost != ""
}

type wrapperFlag struct {
	name     string
	hasValue bool
	optional bool // value may be omitted (only in the separate-token form)
	set      func(w *Wrapper, v string) error
}

var wrapperFlags = []wrapperFlag{
	{name: "ssh-tunnel", hasValue: true, optional: true, set: func(w *Wrapper, v string) error {
		w.Tunnel = true
		w.SSHTunnel = v
		return nil
	}},
	{name: "ssh-host", hasValue: true, set: func(w *Wrapper, v string) error { w.SSHHost = v; return nil }},
	{name: "ssh-user", hasValue: true, set: func(w *Wrapper, v string) error { w.SSHUser = v; return nil }},
	{name: "ssh-port", hasValue: true, set: func(w *Wrapper, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid --ssh-port %q", v)
		}
		w.SSHPort = n
		return nil
	}},
	{name: "ssh-identity", hasValue: true, set: func(w *Wrapper, v string) error { w.SSHIdentity = v; return nil }},
	{name: "ssh-backend", hasValue: true, set: func(w *Wrapper, v string) error { w.SSHBackend = v; return nil }},
	{name: "dsn", hasValue: true, optional: true, set: func(w *Wrapper, v string) error {
		w.DSN = v
		w.DSNInteractive = v == ""
		return nil
	}},
	{name: "list-dsn", set: func(w *Wrapper, _ string) error { w.ListDSN = true; return nil }},
	{name: "debug", set: func(w *Wrapper, _ string) error { w.Debug = true; return nil }},
}

func lookupWrapperFlag(name string) (wrapperFlag, bool) {
	for _, f := range wrapperFlags {
		if f.name == name {
			return f, true
		}
	}
	return wrapperFlag{}, false
}

// WrapperFlagNames lists the wrapper flags, for help and completion.
func WrapperFlagNames() []string {
	out := make([]string, 0, len(wrapperFlags))
	for _, f := range wrapperFlags {
		out = append(out, "--"+f.name)
	}
	return out
}

// SplitWrapper removes wrapper flags from argv and returns them along with
// the remaining tool arguments in their original order. Wrapper flags are
// only recognised before "--" and never inside a tool option's value.
func SplitWrapper(tool Tool, argv []string) (Wrapper, []string, error) {
	var w Wrapper
	rest := make([]string, 0, len(argv))
	opts := tool.options()

	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if tok == "--" {
			rest = append(rest, argv[i:]...)
			break
		}

		if strings.HasPrefix(tok, "--") {
			name, value, inline := strings.Cut(tok[2:], "=")
			if f, ok := lookupWrapperFlag(name); ok {
				switch {
				case !f.hasValue:
					if inline {
						return w, nil, &UsageError{Msg: fmt.Sprintf("--%s does not take a value", name)}
					}
				case inline:
				case i+1 < len(argv) && !(f.optional && strings.HasPrefix(argv[i+1], "-")):
					i++
					value = argv[i]
				case f.optional:
					value = ""
				default:
					return w, nil, &UsageError{Msg: fmt.Sprintf("--%s requires a value", name)}
				}
				if f.hasValue && !f.optional && value == "" {
					return w, nil, &UsageError{Msg: fmt.Sprintf("--%s requires a value", name)}
				}
				if err := f.set(&w, value); err != nil {
					return w, nil, &UsageError{Msg: err.Error()}
				}
				continue
			}
			rest = append(rest, tok)
			if canon, ok := opts.resolveLong(name); ok && opts.long[canon] && !inline && i+1 < len(argv) {
				i++
				rest = append(rest, argv[i])
			}
			continue
		}

		rest = append(rest, tok)
		if len(tok) > 1 && tok[0] == '-' {
			for j := 1; j < len(tok); j++ {
				if opts.shortTakesValue(tok[j]) {
					if j+1 == len(tok) && i+1 < len(argv) {
						i++
						rest = append(rest, argv[i])
					}
					break
				}
			}
		}
	}
	return w, rest, nil
}

// ShortCircuit is a request the dump tool answers on its own.
type ShortCircuit int

const (
	NoShortCircuit ShortCircuit = iota
	Help
	Version
)

// DetectShortCircuit finds help or version requests in tool arguments and
// returns the token to hand to the tool. A lone -v is treated as a version
// request; anywhere else it is the tool's verbose flag.
func DetectShortCircuit(tool Tool, tokens []string) (ShortCircuit, string) {
	if len(tokens) == 1 && tokens[0] == "-v" {
		return Version, "--version"
	}
	found := flagSet(tool, tokens, "--help", "-?", "--version", "-V")
	switch {
	case found["--help"]:
		return Help, "--help"
	case found["-?"]:
		return Help, "-?"
	case found["--version"]:
		return Version, "--version"
	case found["-V"]:
		return Version, "-V"
	}
	return NoShortCircuit, ""
}
