// Package completion produces shell completion candidates for the dump
// subcommands. It holds no state between calls.
package completion

import (
	"context"
	"sort"
	"strings"

	"github.com/arung-agamani/pgtun/internal/args"
)

// Sources supplies the dynamic values completion can offer.
type Sources interface {
	Databases(ctx context.Context) ([]string, error)
	Users(ctx context.Context) ([]string, error)
	Services() ([]string, error)
	Aliases() []string
}

type kind int

const (
	kindNone kind = iota
	kindDatabase
	kindUser
	kindAlias
)

// valueKinds maps an option spelling to what its value names.
var valueKinds = map[string]kind{
	"-d":         kindDatabase,
	"--dbname":   kindDatabase,
	"-U":         kindUser,
	"--username": kindUser,
	"--dsn":      kindAlias,
}

// dumpAllKinds holds the pg_dumpall-only spellings.
var dumpAllKinds = map[string]kind{
	"-l":         kindDatabase,
	"--database": kindDatabase,
}

func valueKind(tool args.Tool, name string) (kind, bool) {
	if k, ok := valueKinds[name]; ok {
		return k, true
	}
	if tool == args.PgDumpAll {
		k, ok := dumpAllKinds[name]
		return k, ok
	}
	return kindNone, false
}

// Complete returns candidates for tokens[cursor]. A cursor equal to
// len(tokens) completes a new, empty word. Lookup failures yield no
// candidates.
func Complete(ctx context.Context, tool args.Tool, tokens []string, cursor int, src Sources) []string {
	if cursor < 0 || cursor > len(tokens) {
		return nil
	}
	current := ""
	if cursor < len(tokens) {
		current = tokens[cursor]
	}
	prev := ""
	if cursor > 0 {
		prev = tokens[cursor-1]
	}
	for _, t := range tokens[:cursor] {
		if t == "--" {
			return nil
		}
	}

	if k, ok := valueKind(tool, prev); ok {
		return filter(values(ctx, k, src), current, "")
	}

	if strings.HasPrefix(current, "--") {
		if name, value, ok := strings.Cut(current, "="); ok {
			if k, known := valueKind(tool, name); known {
				return filter(values(ctx, k, src), value, name+"=")
			}
			return nil
		}
	}

	if strings.HasPrefix(current, "service=") {
		services, err := src.Services()
		if err != nil {
			return nil
		}
		return filter(services, strings.TrimPrefix(current, "service="), "service=")
	}

	if strings.HasPrefix(current, "-") {
		flags := append(tool.LongOptions(), args.WrapperFlagNames()...)
		return filter(flags, current, "")
	}
	return nil
}

func values(ctx context.Context, k kind, src Sources) []string {
	var (
		out []string
		err error
	)
	switch k {
	case kindDatabase:
		out, err = src.Databases(ctx)
	case kindUser:
		out, err = src.Users(ctx)
	case kindAlias:
		out = src.Aliases()
	}
	if err != nil {
		return nil
	}
	return out
}

// filter keeps the candidates starting with prefix, sorted and unique, and
// prepends lead to each.
func filter(candidates []string, prefix, lead string) []string {
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		if !strings.HasPrefix(c, prefix) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, lead+c)
	}
	sort.Strings(out)
	return out
}
