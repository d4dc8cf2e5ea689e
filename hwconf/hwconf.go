// Package hwconf stores rotator hardware configurations as JSON files,
// one per rotator, with a ".rot" extension.
package hwconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/w1xm/sattrack/pass"
)

const ext = ".rot"

// Config describes one rotator: where its daemon listens and what the
// hardware can do.
type Config struct {
	Name      string      `json:"name"`
	Host      string      `json:"host"`
	Port      int         `json:"port"`
	AzType    pass.AzType `json:"aztype"`
	AzStopPos float64     `json:"azstoppos"`
	MinAz     float64     `json:"minaz"`
	MaxAz     float64     `json:"maxaz"`
	MinEl     float64     `json:"minel"`
	MaxEl     float64     `json:"maxel"`
	// CycleMS is the controller period in milliseconds.
	CycleMS   int     `json:"cyclems"`
	Threshold float64 `json:"threshold"`
}

// Default returns a configuration with the stock limits for a full-range
// azimuth/elevation rotator served by a local rotctld.
func Default(name string) Config {
	return Config{
		Name:      name,
		Host:      "localhost",
		Port:      4533,
		AzType:    pass.AzType360,
		MinAz:     0,
		MaxAz:     360,
		MinEl:     0,
		MaxEl:     90,
		CycleMS:   1000,
		Threshold: 5,
	}
}

// Cycle returns the controller period as a duration.
func (c Config) Cycle() time.Duration {
	return time.Duration(c.CycleMS) * time.Millisecond
}

// Addr returns the host:port of the rotator daemon.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Store reads and writes rotator configurations in a directory.
type Store struct {
	Dir string
}

// List returns the names of all stored configurations, sorted.
func (s Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the named configuration. Missing fields take their
// zero values; the name always matches the file name.
func (s Store) Load(name string) (Config, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return Config{}, fmt.Errorf("loading rotator %q: %w", name, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loading rotator %q: %w", name, err)
	}
	c.Name = name
	return c, nil
}

// Save writes the configuration under its name, creating the directory
// if needed.
func (s Store) Save(c Config) error {
	if c.Name == "" {
		return fmt.Errorf("saving rotator: empty name")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("saving rotator %q: %w", c.Name, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("saving rotator %q: %w", c.Name, err)
	}
	return os.WriteFile(s.path(c.Name), append(data, '\n'), 0o644)
}

func (s Store) path(name string) string {
	return filepath.Join(s.Dir, name+ext)
}
