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

import "github.com/ethereum/go-ethereum/common"

// ChildReference is how a committed child is referred to from its parent
// encoding: by hash, or inlined verbatim when the encoding is shorter
// than the hash width. Exactly one of the two fields is set; Inline is
// nil for a hash reference.
type ChildReference struct {
	Hash   common.Hash
	Inline []byte
}

// NodeKind discriminates the shapes a DecodedNode can take.
type NodeKind int

const (
	KindEmpty NodeKind = iota
	KindLeaf
	KindExtension
	KindBranch
)

// DecodedNode is a read-only view of a node encoding. Child references
// are raw byte slices into the encoding; callers turn them into handles
// via NodeCodec.TryDecodeHash (a slice of hash width is a hash, anything
// else is an embedded inline node). Slices alias the decoded input.
type DecodedNode struct {
	Kind    NodeKind
	Partial []byte     // nibbles; leaf and extension only
	Value   []byte     // leaf value, or branch value (nil if absent)
	Child   []byte     // extension child reference
	Branch  [16][]byte // branch child references (nil entries are empty)
}

// NodeCodec is the pluggable wire format for trie nodes. Implementations
// must round-trip: Decode(EncodeX(...)) yields the equivalent logical
// node for every shape, and IsEmptyNode(EmptyNode()) is true. The engine
// is written entirely against this interface; swapping the codec changes
// the node format (and therefore all hashes) without touching the
// mutation algorithms.
type NodeCodec interface {
	Decode(data []byte) (DecodedNode, error)

	EmptyNode() []byte
	LeafNode(partial []byte, value []byte) []byte
	ExtensionNode(partial []byte, child ChildReference) []byte
	BranchNode(children *[16]*ChildReference, value []byte) []byte

	// HashedNullNode is the canonical root hash of the empty trie,
	// constant for a given hasher/codec pair.
	HashedNullNode() common.Hash
	IsEmptyNode(data []byte) bool
	// TryDecodeHash interprets a raw child reference as a hash if its
	// length matches the hash width.
	TryDecodeHash(data []byte) (common.Hash, bool)
}
