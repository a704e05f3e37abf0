package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no application matches the requested id.
var ErrNotFound = errors.New("application not found")

// Entry is the listable subset of a record, as sent to control-plane
// clients.
type Entry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IconPath string `json:"icon_path"`
}

// Catalog is the registry of launchable applications. It is populated once
// at startup by the discovery collaborator and its membership never changes
// afterwards, so lookups need no synchronization of their own.
type Catalog struct {
	records map[string]*Record
	order   []string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		records: make(map[string]*Record),
	}
}

// Add registers a record. Only valid during population, before the daemon
// starts serving requests.
func (c *Catalog) Add(rec *Record) error {
	if rec.ID == "" {
		return errors.New("record has empty id")
	}
	if _, exists := c.records[rec.ID]; exists {
		return fmt.Errorf("duplicate application id %q", rec.ID)
	}
	c.records[rec.ID] = rec
	c.order = append(c.order, rec.ID)
	return nil
}

// Lookup returns the record for the given id, matched exactly and
// case-sensitively. Unknown ids are a user error, not a fault.
func (c *Catalog) Lookup(id string) (*Record, error) {
	rec, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rec, nil
}

// List returns the catalog entries in insertion order, restricted to
// graphical applications when graphicalOnly is set.
func (c *Catalog) List(graphicalOnly bool) []Entry {
	entries := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		rec := c.records[id]
		if graphicalOnly && !rec.Graphical {
			continue
		}
		entries = append(entries, Entry{
			ID:       rec.ID,
			Name:     rec.Name,
			IconPath: rec.IconPath,
		})
	}
	return entries
}

// Len returns the number of registered applications.
func (c *Catalog) Len() int {
	return len(c.order)
}
