package model

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is an ordered list of stations with lookup by id. Stations are
// only ever appended.
type Catalog struct {
	mu       sync.RWMutex
	stations []Station
	byID     map[string]int
}

type catalogFile struct {
	Stations []Station `yaml:"stations"`
}

// NewCatalog builds a catalog from stations, keeping the first occurrence of
// a duplicated id and dropping stations without any stream URL.
func NewCatalog(stations []Station) *Catalog {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[string]int, len(stations)),
	}

	for _, s := range stations {
		c.addLocked(s)
	}

	return c
}

// addLocked appends s unless it has no stream URL. A known id keeps its
// existing entry, which is returned instead.
func (c *Catalog) addLocked(s Station) (Station, bool) {
	if s.StreamURL() == "" {
		return Station{}, false
	}
	if s.ID == "" {
		s.ID = s.StreamURL()
	}
	if idx, exists := c.byID[s.ID]; exists {
		return c.stations[idx], true
	}
	c.byID[s.ID] = len(c.stations)
	c.stations = append(c.stations, s)
	return s, true
}

// Merge adds stations found elsewhere, such as in a directory search, and
// returns them as the catalog holds them so their ids can be played.
func (c *Catalog) Merge(stations []Station) []Station {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		if stored, ok := c.addLocked(s); ok {
			out = append(out, stored)
		}
	}
	return out
}

// LoadCatalog reads a YAML station file of the form:
//
//	stations:
//	  - id: kexp
//	    name: KEXP 90.3 FM
//	    url: https://kexp.streamguys1.com/kexp160.aac
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}

	return NewCatalog(file.Stations), nil
}

// Len returns the number of stations in the catalog
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// All returns a copy of every station in catalog order
func (c *Catalog) All() []Station {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Find looks a station up by id
func (c *Catalog) Find(id string) (Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byID[id]
	if !ok {
		return Station{}, false
	}
	return c.stations[idx], true
}

// Search filters stations whose name, tags or country contain query
// (case-insensitive). An empty query returns every station.
func (c *Catalog) Search(query string) []Station {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.All()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Station
	for _, s := range c.stations {
		if s.matches(query) {
			out = append(out, s)
		}
	}
	return out
}
