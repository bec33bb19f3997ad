package orchestrator

import "fmt"

// Exit codes of pgtun itself. Everything else is the dump tool's own code
// or a shell-style 126/127/128+N.
const (
	ExitUsage  = 2
	ExitTunnel = 3
)

// UnknownAliasError is a --dsn alias found neither in the config file nor
// in the inventory, in a position where pgtun needs its connection string.
type UnknownAliasError struct {
	Alias string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown dsn alias %q (see `pgtun dsn list`)", e.Alias)
}
