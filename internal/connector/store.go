package connector

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"codeberg.org/mutker/hostmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// Store is a read-only lookup of parsed connectors.
type Store interface {
	Get(id string) (*Connector, bool)
	All() []*Connector
}

// MemoryStore is a Store backed by a map. It is safe for concurrent reads
// once populated.
type MemoryStore struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
}

func NewMemoryStore(connectors ...*Connector) (*MemoryStore, error) {
	s := &MemoryStore{connectors: make(map[string]*Connector, len(connectors))}
	for _, c := range connectors {
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add validates and registers a connector.
func (s *MemoryStore) Add(c *Connector) error {
	if err := Validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(c.ID)
	if _, exists := s.connectors[key]; exists {
		return errors.New().WithData(ErrDuplicateConnector, c.ID)
	}
	s.connectors[key] = c
	return nil
}

func (s *MemoryStore) Get(id string) (*Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connectors[strings.ToLower(id)]
	return c, ok
}

// All returns the connectors sorted by id.
func (s *MemoryStore) All() []*Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Connector, 0, len(s.connectors))
	for _, c := range s.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID)
	})
	return out
}

// Parse decodes one connector document. An empty id is replaced by
// defaultID.
func Parse(data []byte, defaultID string) (*Connector, error) {
	c := &Connector{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.New().Wrap(ErrReadConnector, err).WithData(defaultID)
	}
	if c.ID == "" {
		c.ID = defaultID
	}
	return c, nil
}

// LoadDir parses every .yaml/.yml file of dir into a MemoryStore. The file
// name, without extension, is the default connector id.
func LoadDir(dir string) (*MemoryStore, error) {
	errFactory := errors.New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadConnector, err).WithData(dir)
	}

	store, _ := NewMemoryStore()
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errFactory.Wrap(ErrReadConnector, err).WithData(path)
		}

		c, err := Parse(data, strings.TrimSuffix(entry.Name(), ext))
		if err != nil {
			return nil, err
		}
		if err := store.Add(c); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Validate checks the structural invariants of a connector: source keys are
// present and unique, monitor jobs are typed.
func Validate(c *Connector) error {
	errFactory := errors.New()

	if c.ID == "" {
		return errFactory.WithMessage(errors.ErrInvalidArgument, "connector without id")
	}

	seen := make(map[string]struct{})
	for _, key := range c.SourceKeys() {
		if key == "" {
			return errFactory.WithData(ErrMissingSourceKey, c.ID)
		}
		if _, dup := seen[key]; dup {
			return errFactory.WithData(ErrDuplicateSourceKey, c.ID+": "+key)
		}
		seen[key] = struct{}{}
	}

	for _, job := range c.Monitors {
		if job.Type == "" {
			return errFactory.WithData(ErrMissingMonitorType, c.ID)
		}
	}
	return nil
}
