package matteid

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidManifest is returned when manifest JSON cannot be parsed.
var ErrInvalidManifest = errors.New("matteid: invalid manifest")

// Manifest maps entity names to their Cryptomatte IDs for one layer.
// It is safe for concurrent use, so sample producers on several goroutines
// can register the entities they hit.
type Manifest struct {
	mu     sync.RWMutex
	byName map[string]uint32
	byID   map[uint32]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		byName: make(map[string]uint32),
		byID:   make(map[uint32]string),
	}
}

// Add registers a name and returns its ID.
func (m *Manifest) Add(name string) uint32 {
	id := CryptomatteHash(name)
	m.Insert(name, id)
	return id
}

// Insert records an explicit name/ID pair, as read from a file.
func (m *Manifest) Insert(name string, id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[name] = id
	m.byID[id] = name
}

// Lookup returns the name registered for an ID.
func (m *Manifest) Lookup(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.byID[id]
	return name, ok
}

// LookupFloat returns the name for an ID read from a pixel.
func (m *Manifest) LookupFloat(f float32) (string, bool) {
	return m.Lookup(FloatToHash(f))
}

// ID returns the ID registered for a name.
func (m *Manifest) ID(name string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	return id, ok
}

// Len returns the number of names.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}

// Names returns all names in sorted order.
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for n := range m.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge copies every entry of other into m.
func (m *Manifest) Merge(other *Manifest) {
	for _, name := range other.Names() {
		id, _ := other.ID(name)
		m.Insert(name, id)
	}
}

// MarshalJSON encodes the manifest as {"name":"hex id",...}. encoding/json
// writes map keys in sorted order, so the output is deterministic.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	entries := make(map[string]string, len(m.byName))
	for name, id := range m.byName {
		entries[name] = Hex(id)
	}
	m.mu.RUnlock()
	return json.Marshal(entries)
}

// String returns the JSON form of the manifest.
func (m *Manifest) String() string {
	b, _ := m.MarshalJSON()
	return string(b)
}

// ParseManifest decodes a manifest JSON object.
func ParseManifest(data string) (*Manifest, error) {
	var entries map[string]string
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m := NewManifest()
	for name, hex := range entries {
		id, err := ParseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidManifest, name, err)
		}
		m.Insert(name, id)
	}
	return m, nil
}
