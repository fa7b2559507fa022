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

// Package triehash computes Merkle-Patricia trie roots from complete
// key/value sets in one pass, without building a trie or touching a
// database. It exists mostly to cross-check incremental trie
// construction.
package triehash

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/paritytech/go-triedb/hashdb"
	"github.com/paritytech/go-triedb/hexprefix"
)

// A Pair is one key/value binding of the input set.
type Pair struct {
	Key, Value []byte
}

// TrieRoot computes the root hash of the trie holding exactly pairs.
// When a key occurs more than once the last binding wins, matching the
// effect of inserting the pairs in order.
func TrieRoot(hasher hashdb.Hasher, pairs []Pair) common.Hash {
	return hasher.Hash(UnhashedTrie(hasher, pairs))
}

// UnhashedTrie returns the RLP encoding of the root node of the trie
// holding exactly pairs. Unlike TrieRoot the result is not hashed, so
// small tries yield encodings shorter than a hash.
func UnhashedTrie(hasher hashdb.Hasher, pairs []Pair) []byte {
	dedup := make([]Pair, len(pairs))
	copy(dedup, pairs)
	// Stable keeps input order among equal keys so the last binding
	// survives the dedup below.
	sort.SliceStable(dedup, func(i, j int) bool {
		return string(dedup[i].Key) < string(dedup[j].Key)
	})
	out := dedup[:0]
	for i, p := range dedup {
		if i+1 < len(dedup) && string(dedup[i+1].Key) == string(p.Key) {
			continue
		}
		out = append(out, p)
	}

	nibbled := make([]nibblePair, len(out))
	for i, p := range out {
		nibbled[i] = nibblePair{key: keybytesToNibbles(p.Key), value: p.Value}
	}
	return buildNode(hasher, nibbled, 0)
}

type nibblePair struct {
	key   []byte
	value []byte
}

// buildNode encodes the node covering pairs, all of which share their
// first depth nibbles.
func buildNode(hasher hashdb.Hasher, pairs []nibblePair, depth int) []byte {
	if len(pairs) == 0 {
		return emptyData
	}
	if len(pairs) == 1 {
		p := pairs[0]
		return mustEncode([]interface{}{
			hexprefix.Encode(p.key[depth:], true),
			p.value,
		})
	}

	// Extra nibbles shared by every remaining key become an extension.
	shared := sharedPrefixLen(pairs, depth)
	if shared > depth {
		child := buildNode(hasher, pairs, shared)
		return mustEncode([]interface{}{
			hexprefix.Encode(pairs[0].key[depth:shared], false),
			childRef(hasher, child),
		})
	}

	items := make([]interface{}, 17)
	begin := 0
	// A key ending exactly here puts its value in the branch.
	if len(pairs[0].key) == depth {
		items[16] = pairs[0].value
		begin = 1
	} else {
		items[16] = []byte{}
	}
	for alpha := byte(0); alpha < 16; alpha++ {
		end := begin
		for end < len(pairs) && pairs[end].key[depth] == alpha {
			end++
		}
		if end == begin {
			items[alpha] = []byte{}
		} else {
			child := buildNode(hasher, pairs[begin:end], depth+1)
			items[alpha] = childRef(hasher, child)
		}
		begin = end
	}
	return mustEncode(items)
}

// childRef embeds encodings shorter than a hash directly, and replaces
// the rest with their hash.
func childRef(hasher hashdb.Hasher, encoded []byte) interface{} {
	if len(encoded) < common.HashLength {
		return rlp.RawValue(encoded)
	}
	h := hasher.Hash(encoded)
	return h[:]
}

// sharedPrefixLen returns the length of the nibble prefix shared by all
// keys in pairs, which is at least depth. The slice is sorted, so
// comparing the first and last keys suffices.
func sharedPrefixLen(pairs []nibblePair, depth int) int {
	first, last := pairs[0].key, pairs[len(pairs)-1].key
	n := depth
	for n < len(first) && n < len(last) && first[n] == last[n] {
		n++
	}
	return n
}

func keybytesToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	return nibbles
}

var emptyData = []byte{0x80}

func mustEncode(val interface{}) []byte {
	enc, err := rlp.EncodeToBytes(val)
	if err != nil {
		panic("impossible: " + err.Error())
	}
	return enc
}
