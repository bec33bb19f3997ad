// Package dump finds and runs pg_dump and pg_dumpall.
package dump

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// searchDirs are checked when the tool is not on PATH.
var searchDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/usr/pgsql-17/bin",
	"/usr/pgsql-16/bin",
	"/usr/pgsql-15/bin",
	"/usr/pgsql-14/bin",
}

// debianGlob matches the versioned bin dirs of Debian's postgresql-common.
var debianGlob = "/usr/lib/postgresql/*/bin"

var lookPath = exec.LookPath

// Locate returns the path of tool. An explicit path, when given, is used
// as is and must be executable.
func Locate(tool, explicit string) (string, error) {
	if explicit != "" {
		if err := checkExecutable(explicit); err != nil {
			return "", spawnErr(tool, explicit, err)
		}
		return explicit, nil
	}
	if p, err := lookPath(tool); err == nil {
		return p, nil
	}
	for _, dir := range candidateDirs() {
		p := filepath.Join(dir, tool)
		if checkExecutable(p) == nil {
			return p, nil
		}
	}
	return "", &SpawnError{Tool: tool, Path: tool, NotFound: true, Err: exec.ErrNotFound}
}

func candidateDirs() []string {
	dirs := append([]string(nil), searchDirs...)
	if matches, err := filepath.Glob(debianGlob); err == nil {
		// newest major version first
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		dirs = append(dirs, matches...)
	}
	return dirs
}

func checkExecutable(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	if info.IsDir() || info.Mode().Perm()&0111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

func spawnErr(tool, path string, err error) *SpawnError {
	return &SpawnError{
		Tool:     tool,
		Path:     path,
		NotFound: errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound),
		Err:      err,
	}
}
