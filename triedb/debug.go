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

	"github.com/emicklei/dot"
	"github.com/ethereum/go-ethereum/common"
)

// DumpDot renders the in-memory portion of the trie into a graphviz
// graph for debugging. Hash handles show up as leaves labeled with an
// abbreviated hash; they are not resolved from the store.
func (t *TrieDBMut) DumpDot() *dot.Graph {
	g := dot.NewGraph()
	t.dot_handle(g, t.rootHandle)
	return g
}

func (t *TrieDBMut) dot_handle(g *dot.Graph, handle nodeHandle) dot.Node {
	switch h := handle.(type) {
	case hashHandle:
		hash := common.Hash(h)
		ret := g.Node(fmt.Sprintf("hash_%x", hash))
		ret.Label(fmt.Sprintf("#%x..", hash[:4]))
		g.AddToSameRank("hashed", ret)
		return ret
	case inMemory:
		return t.dot_node(g, storageHandle(h))
	default:
		panic("unhandled node handle")
	}
}

func (t *TrieDBMut) dot_node(g *dot.Graph, h storageHandle) dot.Node {
	ret := g.Node(fmt.Sprintf("mem_%d", int(h)))
	switch n := t.storage.at(h).(type) {
	case emptyNode:
		ret.Label("NULL")
	case *leafNode:
		ret.Label(fmt.Sprintf("leaf %x: %x", n.key, n.value))
		g.AddToSameRank("leaves", ret)
	case *extensionNode:
		ret.Label(fmt.Sprintf("ext %x", n.key))
		g.Edge(ret, t.dot_handle(g, n.child))
	case *branchNode:
		if n.value != nil {
			ret.Label(fmt.Sprintf("branch: %x", n.value))
		} else {
			ret.Label("branch")
		}
		for i, child := range n.children {
			if child == nil {
				continue
			}
			g.Edge(ret, t.dot_handle(g, child)).Label(fmt.Sprintf("%x", i))
		}
	default:
		panic("unhandled node type")
	}
	return ret
}
