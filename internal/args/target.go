package args

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the authoritative way a target is addressed.
type Mode int

const (
	// ModeDefault means nothing on the command line names a server; libpq
	// falls back to PGHOST or the local socket.
	ModeDefault Mode = iota
	ModeHost
	ModeService
	ModeAlias
)

func (m Mode) String() string {
	switch m {
	case ModeHost:
		return "host"
	case ModeService:
		return "service"
	case ModeAlias:
		return "dsn alias"
	default:
		return "default"
	}
}

// Target is the connection target as the dump tool would see it.
type Target struct {
	Host     string
	Port     string
	DSNAlias string
	Service  string
	// Database is the dbname of the last connection string, if any.
	Database string
}

func (t Target) Mode() Mode {
	switch {
	case t.Host != "":
		return ModeHost
	case t.Service != "":
		return ModeService
	case t.DSNAlias != "":
		return ModeAlias
	}
	return ModeDefault
}

// PortNumber returns the numeric port, or def when none was given.
func (t Target) PortNumber(def int) (int, error) {
	if t.Port == "" {
		return def, nil
	}
	n, err := strconv.Atoi(t.Port)
	if err != nil || n <= 0 || n > 65535 {
		return 0, &UsageError{Msg: fmt.Sprintf("invalid port %q", t.Port)}
	}
	return n, nil
}

// MultiHost reports a libpq host list such as "a,b".
func (t Target) MultiHost() bool {
	return strings.Contains(t.Host, ",") || strings.Contains(t.Port, ",")
}

// SocketPath reports a Unix-domain socket directory target.
func (t Target) SocketPath() bool {
	return strings.HasPrefix(t.Host, "/") || strings.HasPrefix(t.Host, "@")
}

// Parse extracts the connection target from tool arguments. dsnAlias is the
// wrapper's --dsn value when it could not be resolved to a connection string.
// Repeated settings follow last-one-wins; a pg_dump database argument is
// applied after every option and supersedes -d/--dbname.
func Parse(tool Tool, tokens []string, dsnAlias string) (Target, error) {
	t := Target{DSNAlias: dsnAlias}
	occs, _ := scan(tool, tokens)
	for _, o := range effective(occs) {
		switch o.role {
		case roleHost:
			t.Host = o.value
		case rolePort:
			t.Port = o.value
		case roleConnString:
			cs, err := ParseConnString(o.value)
			if err != nil {
				return Target{}, &UsageError{Msg: err.Error()}
			}
			if cs == nil {
				t.Database = o.value
				continue
			}
			if v, ok := cs.Get("host"); ok && v != "" {
				t.Host = v
			} else if v, ok := cs.Get("hostaddr"); ok && v != "" {
				t.Host = v
			}
			if v, ok := cs.Get("port"); ok && v != "" {
				t.Port = v
			}
			if v, ok := cs.Get("service"); ok {
				t.Service = v
			}
			if v, ok := cs.Get("dbname"); ok {
				t.Database = v
			} else if cs.uri {
				t.Database = uriDatabase(cs.rest)
			}
		}
	}
	return t, nil
}

func uriDatabase(rest string) string {
	if !strings.HasPrefix(rest, "/") {
		return ""
	}
	db := rest[1:]
	if i := strings.IndexAny(db, "?#"); i >= 0 {
		db = db[:i]
	}
	return db
}

// ConnString renders the host, port and database of t as a libpq
// keyword/value string. Unset fields are left to libpq's defaults.
func (t Target) ConnString() string {
	var parts []string
	for _, kv := range [][2]string{{"host", t.Host}, {"port", t.Port}, {"dbname", t.Database}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+quoteValue(kv[1]))
		}
	}
	return strings.Join(parts, " ")
}
