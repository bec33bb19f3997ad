// Package args understands just enough of pg_dump and pg_dumpall command
// lines to find and rewrite the connection target.
package args

import "strings"

// Tool is one of the wrapped dump utilities.
type Tool string

const (
	PgDump    Tool = "pg_dump"
	PgDumpAll Tool = "pg_dumpall"
)

// role is what an option means for connection targeting.
type role int

const (
	roleOther role = iota
	roleHost
	rolePort
	roleConnString // value may be a libpq connection string or URI
)

type toolOptions struct {
	// shortValue holds short options that take an argument.
	shortValue string
	// long maps long option names to whether they take an argument.
	long map[string]bool
	// positionalConnString reports whether the first positional argument
	// is a database name that libpq expands as a connection string.
	positionalConnString bool
}

var commonLong = map[string]bool{
	"file": true, "host": true, "port": true, "username": true, "dbname": true,
	"role": true, "superuser": true, "encoding": true, "lock-wait-timeout": true,
	"extra-float-digits": true, "rows-per-insert": true, "filter": true, "restrict-key": true,
	"no-password": false, "password": false, "verbose": false, "version": false, "help": false,
	"data-only": false, "schema-only": false, "clean": false, "if-exists": false,
	"no-owner": false, "no-privileges": false, "no-acl": false, "no-comments": false,
	"no-publications": false, "no-subscriptions": false, "no-security-labels": false,
	"no-tablespaces": false, "no-toast-compression": false, "no-unlogged-table-data": false,
	"no-sync": false, "no-table-access-method": false, "inserts": false, "column-inserts": false,
	"attribute-inserts": false, "quote-all-identifiers": false, "use-set-session-authorization": false,
	"disable-dollar-quoting": false, "disable-triggers": false, "load-via-partition-root": false,
	"on-conflict-do-nothing": false, "binary-upgrade": false, "no-statistics": false,
	"statistics-only": false, "no-data": false, "no-schema": false, "no-policies": false,
	"with-statistics": false, "with-data": false, "with-schema": false, "sequence-data": false,
}

var tools = map[Tool]toolOptions{
	PgDump: {
		shortValue: "deEfFhjnNpStTUZ",
		long: merge(commonLong, map[string]bool{
			"format": true, "jobs": true, "schema": true, "exclude-schema": true,
			"table": true, "exclude-table": true, "compress": true, "extension": true,
			"exclude-extension": true, "section": true, "exclude-table-data": true,
			"exclude-table-and-children": true, "exclude-table-data-and-children": true,
			"table-and-children": true, "snapshot": true, "sync-method": true,
			"include-foreign-data": true, "large-objects": false, "no-large-objects": false,
			"blobs": false, "no-blobs": false, "create": false, "oids": false,
			"serializable-deferrable": false, "strict-names": false, "enable-row-security": false,
			"no-synchronized-snapshots": false,
		}),
		positionalConnString: true,
	},
	PgDumpAll: {
		shortValue: "dEfhlpSU",
		long: merge(commonLong, map[string]bool{
			"database": true, "exclude-database": true, "format": true,
			"globals-only": false, "roles-only": false, "tablespaces-only": false,
			"no-role-passwords": false, "binary-upgrade": false,
		}),
	},
}

func merge(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (t Tool) options() toolOptions {
	if o, ok := tools[t]; ok {
		return o
	}
	return tools[PgDump]
}

// resolveLong returns the canonical option for name, accepting unambiguous
// prefixes the way getopt_long does.
func (o toolOptions) resolveLong(name string) (string, bool) {
	if _, ok := o.long[name]; ok {
		return name, true
	}
	match := ""
	for opt := range o.long {
		if strings.HasPrefix(opt, name) {
			if match != "" {
				return "", false
			}
			match = opt
		}
	}
	return match, match != ""
}

func (o toolOptions) shortTakesValue(c byte) bool {
	return strings.IndexByte(o.shortValue, c) >= 0
}

func shortRole(c byte) role {
	switch c {
	case 'h':
		return roleHost
	case 'p':
		return rolePort
	case 'd':
		return roleConnString
	}
	return roleOther
}

func longRole(name string) role {
	switch name {
	case "host":
		return roleHost
	case "port":
		return rolePort
	case "dbname":
		return roleConnString
	}
	return roleOther
}

// LongOptions lists the tool's long options, for completion.
func (t Tool) LongOptions() []string {
	o := t.options()
	out := make([]string, 0, len(o.long))
	for name := range o.long {
		out = append(out, "--"+name)
	}
	return out
}
