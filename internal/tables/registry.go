package tables

import (
	"sort"
	"sync"
)

// registry holds every syncable table, indexed by table and entity name.
var (
	registryMu sync.RWMutex
	byName     = make(map[string]*Table)
	byEntity   = make(map[string]*Table)
)

// MustRegister adds a table to the catalog.
// Tables should be registered during init().
// Panics if the table or entity name is already taken.
func MustRegister(t *Table) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := byName[t.Name]; exists {
		panic("table already registered: " + t.Name)
	}
	if _, exists := byEntity[t.Entity]; exists {
		panic("entity already registered: " + t.Entity)
	}
	byName[t.Name] = t
	byEntity[t.Entity] = t
}

// Lookup returns the table with the given SQL name.
func Lookup(name string) (*Table, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := byName[name]
	return t, ok
}

// LookupEntity returns the table served under the given entity name.
func LookupEntity(entity string) (*Table, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := byEntity[entity]
	return t, ok
}

// All returns every registered table sorted by name.
func All() []*Table {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]*Table, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered table name, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}
