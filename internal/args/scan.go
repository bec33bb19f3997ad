package args

import "strings"

// occurrence is one connection-relevant value found on the command line.
type occurrence struct {
	role role
	// index of the token holding the value
	index int
	// prefix is the part of that token before the value ("--host=", "-vh");
	// empty when the value is a token of its own.
	prefix string
	value  string
	// positional marks pg_dump's database argument.
	positional bool
}

func (o occurrence) render(value string) string {
	return o.prefix + value
}

// scan walks tokens the way getopt_long would and reports connection values
// plus the index of the "--" terminator, or -1.
func scan(tool Tool, tokens []string) ([]occurrence, int) {
	opts := tool.options()
	var out []occurrence
	positionals := 0
	terminator := -1
	endOfOptions := false

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if endOfOptions || tok == "-" || !strings.HasPrefix(tok, "-") {
			if opts.positionalConnString && positionals == 0 {
				out = append(out, occurrence{role: roleConnString, index: i, value: tok, positional: true})
			}
			positionals++
			continue
		}
		if tok == "--" {
			endOfOptions = true
			terminator = i
			continue
		}

		if strings.HasPrefix(tok, "--") {
			name, value, inline := strings.Cut(tok[2:], "=")
			canon, known := opts.resolveLong(name)
			if !known || !opts.long[canon] {
				continue
			}
			r := longRole(canon)
			if inline {
				if r != roleOther {
					out = append(out, occurrence{role: r, index: i, prefix: tok[:len(tok)-len(value)], value: value})
				}
				continue
			}
			if i+1 >= len(tokens) {
				continue
			}
			i++
			if r != roleOther {
				out = append(out, occurrence{role: r, index: i, value: tokens[i]})
			}
			continue
		}

		// Short option cluster such as -vh or -hdb.example.com.
		for j := 1; j < len(tok); j++ {
			c := tok[j]
			if !opts.shortTakesValue(c) {
				continue
			}
			r := shortRole(c)
			if j+1 < len(tok) {
				if r != roleOther {
					out = append(out, occurrence{role: r, index: i, prefix: tok[:j+1], value: tok[j+1:]})
				}
			} else if i+1 < len(tokens) {
				i++
				if r != roleOther {
					out = append(out, occurrence{role: r, index: i, value: tokens[i]})
				}
			}
			break
		}
	}
	return out, terminator
}

// effective returns the occurrences the tool actually applies, in the order
// it applies them. getopt permutes positionals behind the options, and
// pg_dump's database argument replaces any -d/--dbname entirely.
func effective(occs []occurrence) []occurrence {
	var pos *occurrence
	for i := range occs {
		if occs[i].positional {
			pos = &occs[i]
		}
	}
	if pos == nil {
		return occs
	}
	out := make([]occurrence, 0, len(occs))
	for _, o := range occs {
		if o.role == roleConnString {
			continue
		}
		out = append(out, o)
	}
	return append(out, *pos)
}

// Positional returns the index and value of pg_dump's database argument.
func Positional(tool Tool, tokens []string) (int, string, bool) {
	occs, _ := scan(tool, tokens)
	for _, o := range occs {
		if o.positional {
			return o.index, o.value, true
		}
	}
	return -1, "", false
}

// flagSet reports which of the given bare flags appear as options, skipping
// option values and everything after "--".
func flagSet(tool Tool, tokens []string, want ...string) map[string]bool {
	opts := tool.options()
	found := map[string]bool{}
	isWanted := func(s string) bool {
		for _, w := range want {
			if w == s {
				return true
			}
		}
		return false
	}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "--" {
			break
		}
		if tok == "-" || !strings.HasPrefix(tok, "-") {
			continue
		}
		if isWanted(tok) {
			found[tok] = true
			continue
		}
		if strings.HasPrefix(tok, "--") {
			name, _, inline := strings.Cut(tok[2:], "=")
			if canon, ok := opts.resolveLong(name); ok && opts.long[canon] && !inline {
				i++
			}
			continue
		}
		for j := 1; j < len(tok); j++ {
			if opts.shortTakesValue(tok[j]) {
				if j+1 == len(tok) {
					i++
				}
				break
			}
		}
	}
	return found
}
