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
	"bytes"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/paritytech/go-triedb/hashdb"
	"github.com/paritytech/go-triedb/hexprefix"
)

// emptyNodeData is the RLP of the empty node: an empty string.
var emptyNodeData = []byte{0x80}

// RlpNodeCodec implements NodeCodec with the canonical Ethereum node
// format: a leaf or extension is a two-item RLP list of hex-prefixed
// partial key and payload, a branch is a seventeen-item list of child
// references plus value, and the empty node is the empty string. The
// null-node hash for keccak-256 is
// 56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421.
type RlpNodeCodec struct {
	hasher   hashdb.Hasher
	nullOnce sync.Once
	nullHash common.Hash
}

func NewRlpNodeCodec(hasher hashdb.Hasher) *RlpNodeCodec {
	return &RlpNodeCodec{hasher: hasher}
}

func (c *RlpNodeCodec) HashedNullNode() common.Hash {
	c.nullOnce.Do(func() {
		c.nullHash = c.hasher.Hash(emptyNodeData)
	})
	return c.nullHash
}

func (c *RlpNodeCodec) IsEmptyNode(data []byte) bool {
	return bytes.Equal(data, emptyNodeData)
}

func (c *RlpNodeCodec) TryDecodeHash(data []byte) (common.Hash, bool) {
	if len(data) == common.HashLength {
		return common.BytesToHash(data), true
	}
	return common.Hash{}, false
}

func (c *RlpNodeCodec) Decode(data []byte) (DecodedNode, error) {
	if len(data) == 0 {
		return DecodedNode{}, fmt.Errorf("rlp codec: empty input")
	}
	if c.IsEmptyNode(data) {
		return DecodedNode{Kind: KindEmpty}, nil
	}
	elems, _, err := rlp.SplitList(data)
	if err != nil {
		return DecodedNode{}, fmt.Errorf("rlp codec: %v", err)
	}
	count, err := rlp.CountValues(elems)
	if err != nil {
		return DecodedNode{}, fmt.Errorf("rlp codec: %v", err)
	}
	switch count {
	case 2:
		return decodeShort(elems)
	case 17:
		return decodeFull(elems)
	default:
		return DecodedNode{}, fmt.Errorf("rlp codec: invalid number of list elements: %d", count)
	}
}

func decodeShort(elems []byte) (DecodedNode, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return DecodedNode{}, fmt.Errorf("rlp codec: %v", err)
	}
	nibbles, leaf, err := hexprefix.Decode(kbuf)
	if err != nil {
		return DecodedNode{}, err
	}
	if leaf {
		value, _, err := rlp.SplitString(rest)
		if err != nil {
			return DecodedNode{}, fmt.Errorf("rlp codec: %v", err)
		}
		return DecodedNode{Kind: KindLeaf, Partial: nibbles, Value: value}, nil
	}
	ref, _, err := decodeRef(rest)
	if err != nil {
		return DecodedNode{}, err
	}
	if ref == nil {
		return DecodedNode{}, fmt.Errorf("rlp codec: extension node with empty child")
	}
	return DecodedNode{Kind: KindExtension, Partial: nibbles, Child: ref}, nil
}

func decodeFull(elems []byte) (DecodedNode, error) {
	dec := DecodedNode{Kind: KindBranch}
	rest := elems
	var err error
	for i := 0; i < 16; i++ {
		dec.Branch[i], rest, err = decodeRef(rest)
		if err != nil {
			return DecodedNode{}, err
		}
	}
	val, _, err := rlp.SplitString(rest)
	if err != nil {
		return DecodedNode{}, fmt.Errorf("rlp codec: %v", err)
	}
	if len(val) > 0 {
		dec.Value = val
	}
	return dec, nil
}

func decodeRef(buf []byte) (ref, rest []byte, err error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, buf, fmt.Errorf("rlp codec: %v", err)
	}
	switch {
	case kind == rlp.List:
		// Embedded node reference. The encoding must be smaller than a
		// hash in order to be valid.
		if size := len(buf) - len(rest); size > common.HashLength {
			return nil, buf, fmt.Errorf("rlp codec: oversized embedded node (size is %d bytes, want size < %d)", size, common.HashLength)
		}
		return buf[:len(buf)-len(rest)], rest, nil
	case kind == rlp.String && len(val) == 0:
		return nil, rest, nil
	case kind == rlp.String && len(val) == common.HashLength:
		return val, rest, nil
	default:
		return nil, buf, fmt.Errorf("rlp codec: invalid RLP string size %d (want 0 or %d)", len(val), common.HashLength)
	}
}

func (c *RlpNodeCodec) EmptyNode() []byte {
	return []byte{0x80}
}

func (c *RlpNodeCodec) LeafNode(partial, value []byte) []byte {
	return mustEncodeList(hexprefix.Encode(partial, true), value)
}

func (c *RlpNodeCodec) ExtensionNode(partial []byte, child ChildReference) []byte {
	return mustEncodeList(hexprefix.Encode(partial, false), childRefItem(child))
}

func (c *RlpNodeCodec) BranchNode(children *[16]*ChildReference, value []byte) []byte {
	items := make([]interface{}, 17)
	for i, child := range children {
		if child == nil {
			items[i] = []byte(nil)
		} else {
			items[i] = childRefItem(*child)
		}
	}
	items[16] = value
	return mustEncodeList(items...)
}

func childRefItem(ref ChildReference) interface{} {
	if ref.Inline != nil {
		return rlp.RawValue(ref.Inline)
	}
	return ref.Hash[:]
}

func mustEncodeList(items ...interface{}) []byte {
	enc, err := rlp.EncodeToBytes(items)
	if err != nil {
		panic("node encode error: " + err.Error())
	}
	return enc
}

var _ NodeCodec = (*RlpNodeCodec)(nil)
