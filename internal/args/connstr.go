package args

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnString is a parsed libpq connection string, either keyword/value
// ("host=db port=5432") or URI ("postgresql://db:5432/app").
type ConnString struct {
	uri bool

	// keyword/value form, in order
	pairs []kv

	// URI form
	scheme   string
	userinfo string // including the trailing '@', if any
	hosts    []string
	rest     string // path, query and fragment, verbatim
	query    url.Values
}

type kv struct {
	key, value string
}

// IsConnString reports whether libpq would expand s as a connection string
// rather than treat it as a plain database name.
func IsConnString(s string) bool {
	return hasURIPrefix(s) || strings.Contains(s, "=")
}

func hasURIPrefix(s string) bool {
	return strings.HasPrefix(s, "postgresql://") || strings.HasPrefix(s, "postgres://")
}

// ParseConnString parses s. Plain database names return (nil, nil).
func ParseConnString(s string) (*ConnString, error) {
	switch {
	case hasURIPrefix(s):
		return parseURI(s)
	case strings.Contains(s, "="):
		pairs, err := parseKeywordValue(s)
		if err != nil {
			return nil, err
		}
		return &ConnString{pairs: pairs}, nil
	}
	return nil, nil
}

func parseKeywordValue(s string) ([]kv, error) {
	var pairs []kv
	i := 0
	skipSpace := func() {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
	}
	for {
		skipSpace()
		if i >= len(s) {
			return pairs, nil
		}
		start := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[start:i]
		skipSpace()
		if i >= len(s) || s[i] != '=' {
			return nil, fmt.Errorf("missing \"=\" after %q in connection string", key)
		}
		i++
		skipSpace()

		var b strings.Builder
		if i < len(s) && s[i] == '\'' {
			i++
			closed := false
			for i < len(s) {
				c := s[i]
				if c == '\\' && i+1 < len(s) {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if c == '\'' {
					i++
					closed = true
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted string in connection string")
			}
		} else {
			for i < len(s) && !isSpace(s[i]) {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
		}
		pairs = append(pairs, kv{key: strings.ToLower(key), value: b.String()})
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func parseURI(s string) (*ConnString, error) {
	scheme, after, _ := strings.Cut(s, "://")
	c := &ConnString{uri: true, scheme: scheme}

	end := strings.IndexAny(after, "/?#")
	authority := after
	if end >= 0 {
		authority, c.rest = after[:end], after[end:]
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		c.userinfo = authority[:at+1]
		authority = authority[at+1:]
	}
	if authority != "" {
		c.hosts = strings.Split(authority, ",")
	}

	rawQuery := ""
	if q := strings.IndexByte(c.rest, '?'); q >= 0 {
		rawQuery = c.rest[q+1:]
		if h := strings.IndexByte(rawQuery, '#'); h >= 0 {
			rawQuery = rawQuery[:h]
		}
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid connection URI query: %w", err)
	}
	c.query = query
	return c, nil
}

// Get returns the value for a libpq keyword. For URIs the host list in the
// authority is reported as "host" and "port" (comma-joined when several).
func (c *ConnString) Get(key string) (string, bool) {
	if !c.uri {
		var (
			v     string
			found bool
		)
		for _, p := range c.pairs {
			if p.key == key {
				v, found = p.value, true
			}
		}
		return v, found
	}

	if vs, ok := c.query[key]; ok && len(vs) > 0 {
		return vs[len(vs)-1], true
	}
	if len(c.hosts) == 0 || (key != "host" && key != "port") {
		return "", false
	}
	var hosts, ports []string
	anyPort := false
	for _, hp := range c.hosts {
		h, p := splitURIHost(hp)
		hosts = append(hosts, h)
		ports = append(ports, p)
		anyPort = anyPort || p != ""
	}
	if key == "host" {
		return strings.Join(hosts, ","), true
	}
	if !anyPort {
		return "", false
	}
	return strings.Join(ports, ","), true
}

// splitURIHost splits "host:port", "[v6]:port" or "host" and percent-decodes
// the host part.
func splitURIHost(hp string) (string, string) {
	var host, port string
	if strings.HasPrefix(hp, "[") {
		if end := strings.IndexByte(hp, ']'); end >= 0 {
			host = hp[1:end]
			port = strings.TrimPrefix(hp[end+1:], ":")
			return host, port
		}
	}
	host = hp
	if c := strings.LastIndexByte(hp, ':'); c >= 0 {
		host, port = hp[:c], hp[c+1:]
	}
	if dec, err := url.PathUnescape(host); err == nil {
		host = dec
	}
	return host, port
}

// WithEndpoint returns the connection string with every host, hostaddr and
// port setting pointed at host:port. Settings that are absent stay absent,
// except that a URI naming a host always gets the port in its authority.
func (c *ConnString) WithEndpoint(host, port string) string {
	if !c.uri {
		parts := make([]string, 0, len(c.pairs))
		for _, p := range c.pairs {
			v := p.value
			switch p.key {
			case "host", "hostaddr":
				v = host
			case "port":
				v = port
			}
			parts = append(parts, p.key+"="+quoteValue(v))
		}
		return strings.Join(parts, " ")
	}

	var b strings.Builder
	b.WriteString(c.scheme)
	b.WriteString("://")
	b.WriteString(c.userinfo)
	if len(c.hosts) > 0 {
		b.WriteString(host)
		b.WriteString(":")
		b.WriteString(port)
	}
	b.WriteString(c.rewriteQuery(host, port))
	return b.String()
}

func (c *ConnString) rewriteQuery(host, port string) string {
	q := strings.IndexByte(c.rest, '?')
	if q < 0 {
		return c.rest
	}
	path, query := c.rest[:q], c.rest[q+1:]
	fragment := ""
	if h := strings.IndexByte(query, '#'); h >= 0 {
		query, fragment = query[:h], query[h:]
	}
	params := strings.Split(query, "&")
	for i, p := range params {
		k, _, _ := strings.Cut(p, "=")
		switch k {
		case "host", "hostaddr":
			params[i] = k + "=" + url.QueryEscape(host)
		case "port":
			params[i] = k + "=" + url.QueryEscape(port)
		}
	}
	return path + "?" + strings.Join(params, "&") + fragment
}

// WithDatabase returns conn with its database set to db. A conn that is a
// plain database name is replaced outright.
func WithDatabase(conn, db string) (string, error) {
	cs, err := ParseConnString(conn)
	if err != nil {
		return "", err
	}
	if cs == nil {
		return db, nil
	}
	return cs.withDatabase(db), nil
}

func (c *ConnString) withDatabase(db string) string {
	if !c.uri {
		parts := make([]string, 0, len(c.pairs)+1)
		found := false
		for _, p := range c.pairs {
			v := p.value
			if p.key == "dbname" {
				v, found = db, true
			}
			parts = append(parts, p.key+"="+quoteValue(v))
		}
		if !found {
			parts = append(parts, "dbname="+quoteValue(db))
		}
		return strings.Join(parts, " ")
	}

	tail := ""
	if i := strings.IndexAny(c.rest, "?#"); i >= 0 {
		tail = c.rest[i:]
	}
	return c.scheme + "://" + c.userinfo + strings.Join(c.hosts, ",") +
		"/" + url.PathEscape(db) + setQueryParam(tail, "dbname", db)
}

// setQueryParam replaces key in a "?query#fragment" tail, if present.
func setQueryParam(tail, key, value string) string {
	if !strings.HasPrefix(tail, "?") {
		return tail
	}
	query, fragment := tail[1:], ""
	if h := strings.IndexByte(query, '#'); h >= 0 {
		query, fragment = query[:h], query[h:]
	}
	params := strings.Split(query, "&")
	for i, p := range params {
		if k, _, _ := strings.Cut(p, "="); k == key {
			params[i] = k + "=" + url.QueryEscape(value)
		}
	}
	return "?" + strings.Join(params, "&") + fragment
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n\r\f\v'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
