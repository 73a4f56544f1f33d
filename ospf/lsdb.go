package ospf

import (
	"cmp"
	"slices"
	"time"

	"golang.org/x/exp/maps"
)

type lsdb map[LSAKey]*installedLSA

type installedLSA struct {
	*LSA
	installedAt time.Time
}

func newLSDB() lsdb {
	return lsdb(make(map[LSAKey]*installedLSA))
}

func (db lsdb) get(k LSAKey) (*LSA, bool) {
	l, ok := db[k]
	if !ok {
		return nil, false
	}
	return l.LSA, true
}

func (db lsdb) set(l *LSA, now time.Time) {
	db[l.Key()] = &installedLSA{LSA: l, installedAt: now}
}

func (db lsdb) delete(k LSAKey) {
	delete(db, k)
}

// sortedKeys returns the keys in db ordered by type, link state ID and
// advertising router.
func (db lsdb) sortedKeys() []LSAKey {
	keys := maps.Keys(db)
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b LSAKey) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := a.ID.Compare(b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.AdvertisingRouter, b.AdvertisingRouter)
}
