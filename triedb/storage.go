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

// storageHandle indexes into a nodeStorage. It is an opaque newtype so
// handles cannot be confused with ordinary integers; a handle is only
// valid within the mutation session that allocated it.
type storageHandle int

// nodeStorage is a compact arena of live nodes. Freed slots are reused
// in FIFO order, so memory is bounded by the peak live-node count of the
// session rather than the number of alloc/destroy cycles. The backing
// slice never shrinks.
type nodeStorage struct {
	nodes []stored
	free  []storageHandle
}

func newNodeStorage() nodeStorage {
	return nodeStorage{}
}

func (s *nodeStorage) alloc(st stored) storageHandle {
	if len(s.free) > 0 {
		h := s.free[0]
		s.free = s.free[1:]
		s.nodes[h] = st
		return h
	}
	s.nodes = append(s.nodes, st)
	return storageHandle(len(s.nodes) - 1)
}

// destroy frees the slot and returns its payload, leaving an empty node
// placeholder behind so a stale read fails loudly rather than aliasing.
func (s *nodeStorage) destroy(h storageHandle) stored {
	st := s.nodes[h]
	s.nodes[h] = storedNew{emptyNode{}}
	s.free = append(s.free, h)
	return st
}

func (s *nodeStorage) at(h storageHandle) node {
	return s.nodes[h].storedNode()
}
