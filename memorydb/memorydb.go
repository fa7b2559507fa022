// Copyright 2015-2019 Parity Technologies (UK) Ltd.
// This file is part of Parity.
//
// Parity is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Parity is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Parity. If not, see <http://www.gnu.org/licenses/>.

// Package memorydb provides a reference-counted, in-memory hashdb.HashDB.
//
// Values are keyed by their hash. Removing a key before it is inserted is
// legal and drives the reference count negative; a later Insert of the
// same bytes cancels it out. The canonical null node is virtually always
// present and is never actually stored or deleted.
package memorydb

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paritytech/go-triedb/hashdb"
)

type entry struct {
	value []byte
	rc    int32
}

// Database is an in-memory HashDB. It is safe for concurrent use, though
// a trie mutation session still requires exclusive ownership of the trie.
type Database struct {
	lock           sync.RWMutex
	hasher         hashdb.Hasher
	data           map[common.Hash]entry
	hashedNullNode common.Hash
	nullNodeData   []byte
}

// New creates a Database whose virtual null node is nullNodeData (for the
// Ethereum RLP layout this is the encoding of the empty node, 0x80).
func New(hasher hashdb.Hasher, nullNodeData []byte) *Database {
	return &Database{
		hasher:         hasher,
		data:           make(map[common.Hash]entry),
		hashedNullNode: hasher.Hash(nullNodeData),
		nullNodeData:   common.CopyBytes(nullNodeData),
	}
}

func (db *Database) Get(key common.Hash) ([]byte, error) {
	if key == db.hashedNullNode {
		return common.CopyBytes(db.nullNodeData), nil
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	if e, ok := db.data[key]; ok && e.rc > 0 {
		return common.CopyBytes(e.value), nil
	}
	return nil, nil
}

func (db *Database) Contains(key common.Hash) bool {
	if key == db.hashedNullNode {
		return true
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	e, ok := db.data[key]
	return ok && e.rc > 0
}

func (db *Database) Insert(value []byte) common.Hash {
	if bytes.Equal(value, db.nullNodeData) {
		return db.hashedNullNode
	}
	key := db.hasher.Hash(value)
	db.Emplace(key, value)
	return key
}

// Emplace stores value under an explicit key, bumping its reference
// count. A previously dead entry (rc <= 0) gets its payload replaced.
func (db *Database) Emplace(key common.Hash, value []byte) {
	if bytes.Equal(value, db.nullNodeData) {
		return
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	e, ok := db.data[key]
	if !ok {
		db.data[key] = entry{common.CopyBytes(value), 1}
		return
	}
	if e.rc <= 0 {
		e.value = common.CopyBytes(value)
	}
	e.rc++
	db.data[key] = e
}

func (db *Database) Remove(key common.Hash) {
	if key == db.hashedNullNode {
		return
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	e, ok := db.data[key]
	if !ok {
		db.data[key] = entry{nil, -1}
		return
	}
	e.rc--
	db.data[key] = e
}

// Keys returns the live keys and their reference counts.
func (db *Database) Keys() map[common.Hash]int32 {
	db.lock.RLock()
	defer db.lock.RUnlock()
	keys := make(map[common.Hash]int32)
	for k, e := range db.data {
		if e.rc != 0 {
			keys[k] = e.rc
		}
	}
	return keys
}

// Raw returns the payload and reference count stored for key, whether or
// not the entry is live. The payload is only meaningful when rc > 0.
func (db *Database) Raw(key common.Hash) ([]byte, int32, bool) {
	if key == db.hashedNullNode {
		return common.CopyBytes(db.nullNodeData), 1, true
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	e, ok := db.data[key]
	return common.CopyBytes(e.value), e.rc, ok
}

// Purge drops all entries whose reference count reached zero.
func (db *Database) Purge() {
	db.lock.Lock()
	defer db.lock.Unlock()
	for k, e := range db.data {
		if e.rc == 0 {
			delete(db.data, k)
		}
	}
}

// Clear drops all entries.
func (db *Database) Clear() {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.data = make(map[common.Hash]entry)
}

// Consolidate folds all entries of other into db, summing reference
// counts. other is drained.
func (db *Database) Consolidate(other *Database) {
	other.lock.Lock()
	drained := other.data
	other.data = make(map[common.Hash]entry)
	other.lock.Unlock()

	db.lock.Lock()
	defer db.lock.Unlock()
	for k, oe := range drained {
		e, ok := db.data[k]
		if !ok {
			db.data[k] = oe
			continue
		}
		if e.rc < 0 {
			e.value = oe.value
		}
		e.rc += oe.rc
		db.data[k] = e
	}
}

// Len returns the number of live entries.
func (db *Database) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	n := 0
	for _, e := range db.data {
		if e.rc > 0 {
			n++
		}
	}
	return n
}

var _ hashdb.HashDB = (*Database)(nil)
