package sync

import (
	"context"
	"fmt"
	"sort"

	"clinic-sync/core/store"
)

// TypeMapper translates Source appointment-type codes into Store examination
// types. The mapping lives in the Store's metadata table, where one
// examination type may claim several external codes. Load once per run; the
// practice edits the mapping rarely but expects edits to apply to the next
// run without a restart.
type TypeMapper struct {
	store       store.Client
	byExternal  map[int]int
	byStoreType map[int][]int
}

// NewTypeMapper creates an unloaded mapper.
func NewTypeMapper(storeClient store.Client) *TypeMapper {
	return &TypeMapper{store: storeClient}
}

// Load reads the mapping table. Claims are first-wins: if two examination
// types claim the same external code, the first row keeps it.
func (m *TypeMapper) Load(ctx context.Context) error {
	types, err := m.store.LoadExaminationTypes(ctx)
	if err != nil {
		return fmt.Errorf("sync: load examination types: %w", err)
	}

	m.byExternal = make(map[int]int)
	for _, et := range types {
		for _, code := range et.ExternalCodes {
			if _, taken := m.byExternal[code]; !taken {
				m.byExternal[code] = et.ExaminationTypeID
			}
		}
	}

	// Reverse view, holding only the claims that actually won.
	m.byStoreType = make(map[int][]int)
	for code, id := range m.byExternal {
		m.byStoreType[id] = append(m.byStoreType[id], code)
	}
	for _, codes := range m.byStoreType {
		sort.Ints(codes)
	}
	return nil
}

// StoreType returns the examination type claiming the external code.
func (m *TypeMapper) StoreType(externalCode int) (int, bool) {
	id, ok := m.byExternal[externalCode]
	return id, ok
}

// CodesFor returns every external code the examination type claims, sorted.
func (m *TypeMapper) CodesFor(storeTypeID int) []int {
	return m.byStoreType[storeTypeID]
}

// AllCodes returns every claimed external code, sorted.
func (m *TypeMapper) AllCodes() []int {
	codes := make([]int, 0, len(m.byExternal))
	for code := range m.byExternal {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// StoreTypeSet returns the examination types claiming at least one code.
func (m *TypeMapper) StoreTypeSet() map[int]bool {
	set := make(map[int]bool, len(m.byStoreType))
	for id := range m.byStoreType {
		set[id] = true
	}
	return set
}
