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

// node is the in-memory tagged union of trie node shapes.
type node interface {
	fstring(string) string
}

type (
	// emptyNode is the lack of a value; terminal.
	emptyNode struct{}

	// leafNode holds the remaining nibble suffix from this point down
	// to its value.
	leafNode struct {
		key   []byte // nibbles
		value []byte
	}

	// extensionNode holds a shared nibble prefix over a single child.
	// After fix, the child always resolves to a branch.
	extensionNode struct {
		key   []byte // nibbles
		child nodeHandle
	}

	// branchNode has 16 optional children indexed by the next nibble
	// and an optional value terminating exactly here. A nil value means
	// no value; values are never empty.
	branchNode struct {
		children [16]nodeHandle
		value    []byte
	}
)

// nodeHandle refers to a node either loaded in the arena or only by its
// hash in the backing store. A hashHandle owns nothing; it is resolved
// into the arena the first time the node must be inspected or mutated.
type nodeHandle interface {
	handleFstring() string
}

type inMemory storageHandle

type hashHandle common.Hash

func (h inMemory) handleFstring() string   { return fmt.Sprintf("mem#%d", int(h)) }
func (h hashHandle) handleFstring() string { return fmt.Sprintf("<%x..>", h[:4]) }

// stored is the arena cell payload: a node created this session, or one
// materialized from the backing store together with the hash it was
// stored under (needed to schedule the old encoding for deletion if the
// node is later replaced).
type stored interface {
	storedNode() node
}

type storedNew struct {
	node node
}

type storedCached struct {
	node node
	hash common.Hash
}

func (s storedNew) storedNode() node    { return s.node }
func (s storedCached) storedNode() node { return s.node }

func (emptyNode) fstring(string) string { return "<empty> " }

func (n *leafNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %x} ", n.key, n.value)
}

func (n *extensionNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %s} ", n.key, n.child.handleFstring())
}

var indices = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c", "d", "e", "f"}

func (n *branchNode) fstring(ind string) string {
	resp := fmt.Sprintf("[\n%s  ", ind)
	for i, child := range &n.children {
		if child == nil {
			resp += fmt.Sprintf("%s: <nil> ", indices[i])
		} else {
			resp += fmt.Sprintf("%s: %s", indices[i], child.handleFstring())
		}
	}
	if n.value != nil {
		resp += fmt.Sprintf("v: %x", n.value)
	}
	return resp + fmt.Sprintf("\n%s] ", ind)
}
