package inventory

import "sort"

// Resolver answers alias lookups from the config file's alias_dsn table and
// the local store. Store entries win on conflict.
type Resolver struct {
	Config map[string]string
	Store  *Store
}

// Resolve returns the entry for name and whether it exists.
func (r Resolver) Resolve(name string) (Entry, bool) {
	if r.Store != nil {
		if e, err := r.Store.Get(name); err == nil {
			return e, true
		}
	}
	if dsn, ok := r.Config[name]; ok && dsn != "" {
		return Entry{DSN: dsn}, true
	}
	return Entry{}, false
}

// Aliases lists every known alias once, sorted.
func (r Resolver) Aliases() []string {
	seen := map[string]bool{}
	var out []string
	for name := range r.Config {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if r.Store != nil {
		for _, name := range r.Store.List() {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}
