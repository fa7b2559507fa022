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

// Package leveldb provides a persistent, reference-counted hashdb.HashDB
// backed by a leveldb instance.
//
// Entries are stored as a signed 32-bit big-endian reference count
// followed by the payload. Like the in-memory store, counts may go
// negative when a removal is journaled before the matching insertion;
// such entries carry no payload until the insertion lands. Entries whose
// count returns to zero stay on disk until Purge is called.
package leveldb

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/paritytech/go-triedb/hashdb"
)

// Options configures a Database.
type Options struct {
	// File is the leveldb directory path.
	File string
	// CacheSize is the number of decoded entries kept in the read
	// cache. Zero picks a default.
	CacheSize int
	// WriteBufferMiB sizes the leveldb memtable. Zero picks a default.
	WriteBufferMiB int
}

const defaultCacheSize = 16 * 1024

// Database is a hashdb.HashDB stored in leveldb. The HashDB write
// methods are infallible by signature; I/O failures are latched and
// reported by Err.
type Database struct {
	mu     sync.Mutex
	ldb    *goleveldb.DB
	hasher hashdb.Hasher

	hashedNullNode common.Hash
	nullNodeData   []byte

	cache *lru.Cache // hash -> rc-prefixed raw entry
	err   error

	logger log.Logger
}

// New opens (or creates) the database at opts.File. The null node is
// implicitly present and is never written to disk.
func New(opts Options, hasher hashdb.Hasher, nullNodeData []byte) (*Database, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = defaultCacheSize
	}
	ldbOpts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	if opts.WriteBufferMiB > 0 {
		ldbOpts.WriteBuffer = opts.WriteBufferMiB * opt.MiB
	}
	ldb, err := goleveldb.OpenFile(opts.File, ldbOpts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		ldb, err = goleveldb.RecoverFile(opts.File, nil)
	}
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		ldb.Close()
		return nil, err
	}
	logger := log.New("database", opts.File)
	logger.Debug("Opened trie database")
	return &Database{
		ldb:            ldb,
		hasher:         hasher,
		hashedNullNode: hasher.Hash(nullNodeData),
		nullNodeData:   common.CopyBytes(nullNodeData),
		cache:          cache,
		logger:         logger,
	}, nil
}

// Err returns the first write error encountered since the last call,
// clearing it.
func (db *Database) Err() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.err
	db.err = nil
	return err
}

// Close flushes and closes the underlying leveldb handle.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cache.Purge()
	return db.ldb.Close()
}

func (db *Database) setError(err error) {
	if db.err == nil {
		db.err = err
	}
	db.logger.Error("Trie database write failed", "err", err)
}

// rawEntry loads the rc-prefixed entry for key, going through the read
// cache. Missing keys return nil.
func (db *Database) rawEntry(key common.Hash) ([]byte, error) {
	if cached, ok := db.cache.Get(key); ok {
		return cached.([]byte), nil
	}
	raw, err := db.ldb.Get(key[:], nil)
	if err == goleveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	db.cache.Add(key, raw)
	return raw, nil
}

func (db *Database) putEntry(key common.Hash, rc int32, value []byte) error {
	raw := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(raw, uint32(rc))
	copy(raw[4:], value)
	if err := db.ldb.Put(key[:], raw, nil); err != nil {
		return err
	}
	db.cache.Add(key, raw)
	return nil
}

func entryRC(raw []byte) int32 { return int32(binary.BigEndian.Uint32(raw)) }

// Get returns the value stored under key if it is live, or nil.
func (db *Database) Get(key common.Hash) ([]byte, error) {
	if key == db.hashedNullNode {
		return db.nullNodeData, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	raw, err := db.rawEntry(key)
	if err != nil {
		return nil, err
	}
	if raw == nil || entryRC(raw) <= 0 {
		return nil, nil
	}
	return common.CopyBytes(raw[4:]), nil
}

// Contains reports whether key is live.
func (db *Database) Contains(key common.Hash) bool {
	v, err := db.Get(key)
	if err != nil {
		db.mu.Lock()
		db.setError(err)
		db.mu.Unlock()
		return false
	}
	return v != nil
}

// Insert stores value under its hash, bumping its reference count, and
// returns the hash.
func (db *Database) Insert(value []byte) common.Hash {
	if bytes.Equal(value, db.nullNodeData) {
		return db.hashedNullNode
	}
	key := db.hasher.Hash(value)
	db.Emplace(key, value)
	return key
}

// Emplace stores value under the given key, bumping its reference count.
func (db *Database) Emplace(key common.Hash, value []byte) {
	if key == db.hashedNullNode {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	raw, err := db.rawEntry(key)
	if err != nil {
		db.setError(err)
		return
	}
	rc := int32(0)
	if raw != nil {
		rc = entryRC(raw)
	}
	// A non-positive count means the payload is absent or stale.
	if rc <= 0 {
		err = db.putEntry(key, rc+1, value)
	} else {
		err = db.putEntry(key, rc+1, raw[4:])
	}
	if err != nil {
		db.setError(err)
	}
}

// Remove decrements key's reference count, journaling a negative count
// if the key has not been inserted yet.
func (db *Database) Remove(key common.Hash) {
	if key == db.hashedNullNode {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	raw, err := db.rawEntry(key)
	if err != nil {
		db.setError(err)
		return
	}
	if raw == nil {
		err = db.putEntry(key, -1, nil)
	} else {
		err = db.putEntry(key, entryRC(raw)-1, raw[4:])
	}
	if err != nil {
		db.setError(err)
	}
}

// Purge deletes all entries whose reference count is exactly zero. Dead
// entries are otherwise kept so that later re-insertions reuse them.
func (db *Database) Purge() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	iter := db.ldb.NewIterator(nil, nil)
	defer iter.Release()
	purged := 0
	for iter.Next() {
		if entryRC(iter.Value()) != 0 {
			continue
		}
		key := common.BytesToHash(iter.Key())
		if err := db.ldb.Delete(key[:], nil); err != nil {
			return err
		}
		db.cache.Remove(key)
		purged++
	}
	if err := iter.Error(); err != nil {
		return err
	}
	db.logger.Debug("Purged dead trie nodes", "count", purged)
	return nil
}

var _ hashdb.HashDB = (*Database)(nil)
