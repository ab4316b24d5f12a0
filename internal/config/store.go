// Package config persists LoopDesk settings as a section-keyed YAML document.
//
// The document lives in the persistent data directory and is shared by every
// UI surface that saves settings. Updates are read-merge-write and scoped to
// one section: saving one integration's credentials must never drop a
// sibling section written by another.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/loopdesk/loopdesk/internal/appdir"
)

// ErrCorrupt is returned by Load when the document exists but cannot be
// parsed. The broken file is quarantined and an empty document takes its
// place; callers report the condition and continue on defaults.
var ErrCorrupt = errors.New("configuration document is corrupt")

// Document is the parsed configuration: section -> key -> value.
type Document map[string]map[string]any

// Store reads and writes the configuration document.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a Store for the document inside dataDir.
func NewStore(dataDir string, logger *slog.Logger) *Store {
	return &Store{
		path:   appdir.ConfigPath(dataDir),
		logger: logger.With("component", "config-store"),
	}
}

// Path returns the document's filesystem path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. An absent file is a normal startup condition and
// yields an empty document. A corrupt file is renamed aside and yields an
// empty document together with ErrCorrupt.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	doc := Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.quarantine(err)
		return Document{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// quarantine moves an unparseable document aside so the next write starts
// clean while the broken original stays available for inspection.
func (s *Store) quarantine(cause error) {
	quarantined := s.path + ".corrupt"
	if err := os.Rename(s.path, quarantined); err != nil {
		s.logger.Error("Failed to quarantine corrupt configuration", "error", err)
		return
	}
	s.logger.Warn("Quarantined corrupt configuration",
		"path", quarantined, "parse_error", cause)
}

// Section returns a copy of one section. A missing section is an empty map.
func (s *Store) Section(name string) (map[string]any, error) {
	doc, err := s.Load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return nil, err
	}
	section := make(map[string]any, len(doc[name]))
	for k, v := range doc[name] {
		section[k] = v
	}
	return section, err
}

// UpdateSection merges values into the named section and persists the
// document. Existing keys in the section are overwritten, keys absent from
// values are kept, and sibling sections are never touched. The write is
// temp-file-then-rename so a crash cannot leave a half-written document.
func (s *Store) UpdateSection(name string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if errors.Is(err, ErrCorrupt) {
		s.logger.Warn("Rebuilding configuration from defaults after corruption")
	}

	section := doc[name]
	if section == nil {
		section = make(map[string]any, len(values))
	}
	for k, v := range values {
		section[k] = v
	}
	doc[name] = section

	return s.write(doc)
}

func (s *Store) write(doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace configuration: %w", err)
	}
	return nil
}

// decodeSection unmarshals one section of doc into a typed settings struct.
func decodeSection(doc Document, name string, out any) error {
	section, ok := doc[name]
	if !ok {
		return nil
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
