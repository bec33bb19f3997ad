package completion

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/arung-agamani/pgtun/internal/args"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSources struct {
	dbs, users, services, aliases []string
	err                           error
}

func (f fakeSources) Databases(context.Context) ([]string, error) { return f.dbs, f.err }
func (f fakeSources) Users(context.Context) ([]string, error)     { return f.users, f.err }
func (f fakeSources) Services() ([]string, error)                 { return f.services, f.err }
func (f fakeSources) Aliases() []string                           { return f.aliases }

func TestComplete(t *testing.T) {
	src := fakeSources{
		dbs:      []string{"postgres", "app", "analytics", "app"},
		users:    []string{"admin", "app_rw", "app_ro"},
		services: []string{"prod", "staging"},
		aliases:  []string{"prod-main", "prod-replica", "dev"},
	}
	tests := []struct {
		name   string
		tool   args.Tool
		tokens []string
		cursor int
		want   []string
	}{
		{"database after -d", args.PgDump, []string{"-d", "a"}, 1, []string{"analytics", "app"}},
		{"database after --dbname, new word", args.PgDump, []string{"--dbname"}, 1, []string{"analytics", "app", "postgres"}},
		{"database after -l", args.PgDumpAll, []string{"-l", "p"}, 1, []string{"postgres"}},
		{"database after --database", args.PgDumpAll, []string{"--database", ""}, 1, []string{"analytics", "app", "postgres"}},
		{"pg_dump -l is not a database", args.PgDump, []string{"-l", "p"}, 1, nil},
		{"pg_dump --database is not a database", args.PgDump, []string{"--database=a"}, 0, nil},
		{"user after -U", args.PgDump, []string{"-h", "db", "-U", "app"}, 3, []string{"app_ro", "app_rw"}},
		{"user inline", args.PgDump, []string{"--username=ad"}, 0, []string{"--username=admin"}},
		{"alias after --dsn", args.PgDump, []string{"--dsn", "prod"}, 1, []string{"prod-main", "prod-replica"}},
		{"alias inline", args.PgDump, []string{"--dsn=d"}, 0, []string{"--dsn=dev"}},
		{"service", args.PgDump, []string{"service=st"}, 0, []string{"service=staging"}},
		{"wrapper flag", args.PgDump, []string{"--ssh-t"}, 0, []string{"--ssh-tunnel"}},
		{"tool flag", args.PgDump, []string{"--schema-o"}, 0, []string{"--schema-only"}},
		{"dumpall flag", args.PgDumpAll, []string{"--globals"}, 0, []string{"--globals-only"}},
		{"pg_dump lacks dumpall flags", args.PgDump, []string{"--globals"}, 0, nil},
		{"unknown inline option", args.PgDump, []string{"--format=c"}, 0, nil},
		{"plain word", args.PgDump, []string{"mydb"}, 0, nil},
		{"after terminator", args.PgDump, []string{"--", "-d"}, 2, nil},
		{"cursor out of range", args.PgDump, []string{"-d"}, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Complete(context.Background(), tt.tool, tt.tokens, tt.cursor, src)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompleteSourceErrors(t *testing.T) {
	src := fakeSources{err: errors.New("connection refused"), aliases: []string{"a"}}
	assert.Empty(t, Complete(context.Background(), args.PgDump, []string{"-d", ""}, 1, src))
	assert.Empty(t, Complete(context.Background(), args.PgDump, []string{"service="}, 0, src))
	assert.Equal(t, []string{"a"}, Complete(context.Background(), args.PgDump, []string{"--dsn", ""}, 1, src))
}

func TestLiveServices(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pg_service.conf")
	conf := "[prod]\nhost=db.prod\nport=5432\n\n[reporting]\nhost=db.reporting\n"
	require.NoError(t, os.WriteFile(file, []byte(conf), 0600))
	t.Setenv("PGSERVICEFILE", file)

	names, err := (&Live{}).Services()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prod", "reporting"}, names)

	got := Complete(context.Background(), args.PgDump, []string{"service=r"}, 0, &Live{})
	assert.Equal(t, []string{"service=reporting"}, got)
}

func TestLiveServicesMissingFile(t *testing.T) {
	t.Setenv("PGSERVICEFILE", filepath.Join(t.TempDir(), "absent.conf"))
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PGSYSCONFDIR", "")

	names, err := (&Live{}).Services()
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestLiveUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	l := &Live{
		ConnString: "host=127.0.0.1 port=" + strconv.Itoa(port) + " user=nobody dbname=postgres sslmode=disable",
		Timeout:    500 * time.Millisecond,
	}
	_, err = l.Databases(context.Background())
	assert.Error(t, err)
	_, err = l.Users(context.Background())
	assert.Error(t, err, "the failed lookup is remembered")

	assert.Empty(t, Complete(context.Background(), args.PgDump, []string{"-d", ""}, 1, l))
}
