package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CatalogEntry describes one reusable component.
type CatalogEntry struct {
	Gateway     string   `json:"gateway,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// UnmarshalJSON accepts an object, a list of tool names (used as tags) or
// a bare description string.
func (e *CatalogEntry) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		type plain CatalogEntry
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*e = CatalogEntry(p)
	case strings.HasPrefix(trimmed, "["):
		var tools []string
		if err := json.Unmarshal(data, &tools); err != nil {
			return err
		}
		*e = CatalogEntry{Tags: tools}
	case strings.HasPrefix(trimmed, `"`):
		var desc string
		if err := json.Unmarshal(data, &desc); err != nil {
			return err
		}
		*e = CatalogEntry{Description: desc}
	case trimmed == "null":
		*e = CatalogEntry{}
	default:
		return fmt.Errorf("catalog entry must be an object, a list or a string, got %s", trimmed)
	}
	return nil
}

// Catalog maps component names to their descriptors.
type Catalog map[string]CatalogEntry

// Lookup returns the catalog key for name. An exact key wins; otherwise
// keys are compared the way Decide compares names, and the smallest
// matching key is returned.
func (c Catalog) Lookup(name string) (string, bool) {
	if _, ok := c[name]; ok {
		return name, true
	}
	want := normalizeName(name)
	match := ""
	for key := range c {
		if normalizeName(key) == want && (match == "" || key < match) {
			match = key
		}
	}
	return match, match != ""
}

// GatewayFor returns the gateway serving name, defaulting to name itself.
func (c Catalog) GatewayFor(name string) (string, bool) {
	entry, ok := c[name]
	if !ok {
		return "", false
	}
	if entry.Gateway != "" {
		return entry.Gateway, true
	}
	return name, true
}
