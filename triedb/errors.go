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

package triedb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MissingNodeError is returned when a node referenced by hash cannot be
// found in the backing store while materializing a path. It indicates an
// incomplete database, typically an upstream pruning bug or corruption;
// the trie instance must be discarded and rebuilt from a known-good root.
type MissingNodeError struct {
	NodeHash common.Hash
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %x (incomplete database)", e.NodeHash)
}

// InvalidStateRootError is returned by FromExisting when the given root
// hash is not present in the backing store.
type InvalidStateRootError struct {
	Root common.Hash
}

func (e *InvalidStateRootError) Error() string {
	return fmt.Sprintf("invalid state root %x", e.Root)
}
