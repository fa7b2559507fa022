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

// Package hashdb defines the content-addressed store and hasher
// abstractions consumed by the trie packages.
package hashdb

import "github.com/ethereum/go-ethereum/common"

// Hasher produces fixed-width cryptographic digests of byte strings.
type Hasher interface {
	Hash(data []byte) common.Hash
}

// HashDB is a reference-counted content-addressed store. Inserting the
// same bytes twice bumps a reference count rather than duplicating
// storage; Remove decrements it. Reference counting is the store's
// responsibility, callers only balance their Insert/Remove calls.
type HashDB interface {
	// Get returns the value keyed by its hash, or nil if the key has no
	// live reference. A non-nil error signals a store-level failure, not
	// a missing key.
	Get(key common.Hash) ([]byte, error)
	// Insert stores the value and returns its hash.
	Insert(value []byte) common.Hash
	// Remove decrements the reference count of the keyed value,
	// deleting it once no references remain. Removing a key before it
	// is inserted is legal and cancels out a later Insert.
	Remove(key common.Hash)
	// Contains reports whether the keyed value has a live reference.
	Contains(key common.Hash) bool
}
