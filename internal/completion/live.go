package completion

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgservicefile"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds every catalog lookup; a slow server must not stall
// the shell.
const DefaultTimeout = 2 * time.Second

// Live reads databases and roles from a running server and services from
// the libpq service file.
type Live struct {
	// ConnString is passed to pgx unchanged; empty means libpq defaults.
	ConnString string
	Timeout    time.Duration
	AliasNames []string

	once  sync.Once
	dbs   []string
	users []string
	err   error
}

func (l *Live) Databases(ctx context.Context) ([]string, error) {
	l.load(ctx)
	return l.dbs, l.err
}

func (l *Live) Users(ctx context.Context) ([]string, error) {
	l.load(ctx)
	return l.users, l.err
}

func (l *Live) Aliases() []string { return l.AliasNames }

// load queries both catalogs concurrently, once.
func (l *Live) load(ctx context.Context) {
	l.once.Do(func() {
		timeout := l.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cfg, err := pgxpool.ParseConfig(l.ConnString)
		if err != nil {
			l.err = err
			return
		}
		cfg.MaxConns = 2
		cfg.ConnConfig.ConnectTimeout = timeout
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			l.err = err
			return
		}
		defer pool.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			l.dbs, err = queryNames(gctx, pool, "SELECT datname FROM pg_catalog.pg_database WHERE datallowconn ORDER BY 1")
			return err
		})
		g.Go(func() error {
			var err error
			l.users, err = queryNames(gctx, pool, "SELECT rolname FROM pg_catalog.pg_roles WHERE rolcanlogin ORDER BY 1")
			return err
		})
		l.err = g.Wait()
	})
}

func queryNames(ctx context.Context, pool *pgxpool.Pool, sql string) ([]string, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Services lists the service names of the first service file found:
// $PGSERVICEFILE, ~/.pg_service.conf, then $PGSYSCONFDIR/pg_service.conf.
func (l *Live) Services() ([]string, error) {
	var names []string
	for _, path := range serviceFiles() {
		sf, err := pgservicefile.ReadServicefile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, s := range sf.Services {
			names = append(names, s.Name)
		}
		return names, nil
	}
	return nil, nil
}

func serviceFiles() []string {
	var paths []string
	if p := os.Getenv("PGSERVICEFILE"); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pg_service.conf"))
	}
	if dir := os.Getenv("PGSYSCONFDIR"); dir != "" {
		paths = append(paths, filepath.Join(dir, "pg_service.conf"))
	}
	return paths
}
