// Package inventory keeps the local DSN alias inventory.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileName = "dsn-inventory.json"

// reserved names collide with the dsn subcommands.
var reserved = map[string]bool{"list": true, "get": true, "set": true, "delete": true}

// ErrNotFound is returned for aliases that are not in the inventory.
var ErrNotFound = errors.New("alias not found")

// Entry is one DSN alias.
type Entry struct {
	DSN       string   `json:"dsn"`
	SSHTunnel string   `json:"ssh_tunnel,omitempty"` // bastion URL used when this alias is dumped
	Tags      []string `json:"tags,omitempty"`
}

// Store is a JSON file of aliases in the data directory.
type Store struct {
	dataDir string

	mu   sync.Mutex
	data map[string]Entry
}

// Open creates the data directory if needed and loads the inventory file.
func Open(dataDir string) (*Store, error) {
	s := &Store{dataDir: dataDir, data: make(map[string]Entry)}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, fileName)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("parse %s: %w", s.path(), err)
	}
	// A literal null decodes to a nil map.
	if s.data == nil {
		s.data = map[string]Entry{}
	}
	return nil
}

// save writes through a temp file so a crash never leaves a torn inventory.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dataDir, fileName+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path())
}

// ValidateName rejects aliases that cannot be typed back on the command line.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("alias must not be empty")
	case reserved[name]:
		return fmt.Errorf("invalid alias %q: cannot be 'list', 'get', 'set', or 'delete'", name)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("invalid alias %q: must not start with '-'", name)
	case strings.ContainsAny(name, " \t\n="):
		return fmt.Errorf("invalid alias %q: must not contain whitespace or '='", name)
	}
	return nil
}

func (s *Store) Get(name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Set adds or replaces an alias and persists the inventory.
func (s *Store) Set(name string, e Entry) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if strings.TrimSpace(e.DSN) == "" {
		return errors.New("dsn must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = e
	return s.save()
}

func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.data, name)
	return s.save()
}

// List returns alias names in sorted order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data))
	for k := range s.data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
