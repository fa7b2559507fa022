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

// Package triedb implements an in-memory Merkle-Patricia trie mutation
// engine over a content-addressed backing store.
//
// A TrieDBMut materializes only the nodes touched by a mutation into an
// arena; everything else stays in the store and is referenced by hash.
// Changes are not written back until Commit is called: the commit pass
// encodes the dirty subtree bottom-up, inlines encodings smaller than
// the hash width into their parent, writes the rest to the store and
// garbage-collects superseded node hashes.
package triedb

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paritytech/go-triedb/hashdb"
)

// post-inspect action.
type actionKind int

const (
	// replace a node with a new one; it must be re-encoded at commit.
	replaceAction actionKind = iota
	// restore the original node; no structural change happened.
	restoreAction
	// remove the node entirely.
	deleteAction
)

type action struct {
	kind actionKind
	node node
}

func replaceWith(n node) action { return action{replaceAction, n} }
func restore(n node) action     { return action{restoreAction, n} }
func remove() action            { return action{deleteAction, nil} }

// TrieDBMut is a mutable trie session over a hashdb.HashDB backing store
// and an external root-hash cell. It assumes exclusive ownership of both
// for its lifetime and is not safe for concurrent use.
//
// After a failed operation (a MissingNodeError or a decode failure) the
// instance must be discarded; no partial-success recovery is defined.
type TrieDBMut struct {
	storage    nodeStorage
	db         hashdb.HashDB
	root       *common.Hash
	rootHandle nodeHandle
	deathRow   map[common.Hash]struct{}
	codec      NodeCodec
	// the number of hash operations performed; none happen until
	// changes are committed.
	hashCount int
}

// New creates an empty trie over db, resetting *root to the canonical
// null-node hash.
func New(db hashdb.HashDB, root *common.Hash, codec NodeCodec) *TrieDBMut {
	*root = codec.HashedNullNode()
	return &TrieDBMut{
		storage:    newNodeStorage(),
		db:         db,
		root:       root,
		rootHandle: hashHandle(codec.HashedNullNode()),
		deathRow:   make(map[common.Hash]struct{}),
		codec:      codec,
	}
}

// FromExisting opens the trie rooted at *root. It fails if the root hash
// is not present in db.
func FromExisting(db hashdb.HashDB, root *common.Hash, codec NodeCodec) (*TrieDBMut, error) {
	if !db.Contains(*root) {
		return nil, &InvalidStateRootError{Root: *root}
	}
	return &TrieDBMut{
		storage:    newNodeStorage(),
		db:         db,
		root:       root,
		rootHandle: hashHandle(*root),
		deathRow:   make(map[common.Hash]struct{}),
		codec:      codec,
	}, nil
}

// DB returns the backing store.
func (t *TrieDBMut) DB() hashdb.HashDB { return t.db }

// HashCount returns the number of node hashes computed and written so
// far. It only advances during commits.
func (t *TrieDBMut) HashCount() int { return t.hashCount }

// IsEmpty reports whether the trie holds no values.
func (t *TrieDBMut) IsEmpty() bool {
	switch h := t.rootHandle.(type) {
	case hashHandle:
		return common.Hash(h) == t.codec.HashedNullNode()
	case inMemory:
		_, empty := t.storage.at(storageHandle(h)).(emptyNode)
		return empty
	default:
		panic("unhandled node handle")
	}
}

// Get returns the value stored under key, or nil if absent.
func (t *TrieDBMut) Get(key []byte) ([]byte, error) {
	return t.lookup(keybytesToNibbles(key), t.rootHandle)
}

// Contains reports whether key has a value in the trie.
func (t *TrieDBMut) Contains(key []byte) (bool, error) {
	v, err := t.Get(key)
	return v != nil, err
}

// Insert maps key to value, returning the previous value at that exact
// key if any. An empty value is equivalent to Remove.
func (t *TrieDBMut) Insert(key, value []byte) ([]byte, error) {
	if len(value) == 0 {
		return t.Remove(key)
	}
	var oldVal []byte
	handle, _, err := t.insertAt(t.rootHandle, keybytesToNibbles(key), common.CopyBytes(value), &oldVal)
	if err != nil {
		return nil, err
	}
	t.rootHandle = inMemory(handle)
	return oldVal, nil
}

// Remove deletes the value under key, returning it if it was present.
func (t *TrieDBMut) Remove(key []byte) ([]byte, error) {
	var oldVal []byte
	handle, _, live, err := t.removeAt(t.rootHandle, keybytesToNibbles(key), &oldVal)
	if err != nil {
		return nil, err
	}
	if live {
		t.rootHandle = inMemory(handle)
	} else {
		t.rootHandle = hashHandle(t.codec.HashedNullNode())
		*t.root = t.codec.HashedNullNode()
	}
	return oldVal, nil
}

// Root commits any pending changes and returns the root hash.
func (t *TrieDBMut) Root() common.Hash {
	t.Commit()
	return *t.root
}

// Close commits pending changes. It stands in for scope-exit semantics:
// callers should defer it so the external root cell is left consistent
// on all paths.
func (t *TrieDBMut) Close() {
	t.Commit()
}

// lookup walks the trie from handle looking for the node at partial.
// In-memory nodes are inspected in the arena; as soon as a hash handle
// is hit the walk continues over raw encodings without allocating.
func (t *TrieDBMut) lookup(partial []byte, handle nodeHandle) ([]byte, error) {
	for {
		switch h := handle.(type) {
		case hashHandle:
			return t.lookupHash(common.Hash(h), partial)
		case inMemory:
			switch n := t.storage.at(storageHandle(h)).(type) {
			case emptyNode:
				return nil, nil
			case *leafNode:
				if bytes.Equal(n.key, partial) {
					return common.CopyBytes(n.value), nil
				}
				return nil, nil
			case *extensionNode:
				if len(partial) < len(n.key) || !bytes.Equal(partial[:len(n.key)], n.key) {
					return nil, nil
				}
				partial = partial[len(n.key):]
				handle = n.child
			case *branchNode:
				if len(partial) == 0 {
					return common.CopyBytes(n.value), nil
				}
				child := n.children[partial[0]]
				if child == nil {
					return nil, nil
				}
				partial = partial[1:]
				handle = child
			default:
				panic("unhandled node type")
			}
		default:
			panic("unhandled node handle")
		}
	}
}

// lookupHash is the read-only tail of lookup: it follows hash and inline
// references through the codec without ever touching the arena.
func (t *TrieDBMut) lookupHash(hash common.Hash, partial []byte) ([]byte, error) {
	enc, err := t.db.Get(hash)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, &MissingNodeError{NodeHash: hash}
	}
	for {
		dec, err := t.codec.Decode(enc)
		if err != nil {
			return nil, err
		}
		var ref []byte
		switch dec.Kind {
		case KindEmpty:
			return nil, nil
		case KindLeaf:
			if bytes.Equal(dec.Partial, partial) {
				return common.CopyBytes(dec.Value), nil
			}
			return nil, nil
		case KindExtension:
			if len(partial) < len(dec.Partial) || !bytes.Equal(partial[:len(dec.Partial)], dec.Partial) {
				return nil, nil
			}
			partial = partial[len(dec.Partial):]
			ref = dec.Child
		case KindBranch:
			if len(partial) == 0 {
				return common.CopyBytes(dec.Value), nil
			}
			ref = dec.Branch[partial[0]]
			if ref == nil {
				return nil, nil
			}
			partial = partial[1:]
		}
		if h, ok := t.codec.TryDecodeHash(ref); ok {
			enc, err = t.db.Get(h)
			if err != nil {
				return nil, err
			}
			if enc == nil {
				return nil, &MissingNodeError{NodeHash: h}
			}
		} else {
			enc = ref
		}
	}
}

// cache materializes the node stored under hash into the arena.
func (t *TrieDBMut) cache(hash common.Hash) (storageHandle, error) {
	cache_miss_cnt.Inc(1)
	enc, err := t.db.Get(hash)
	if err != nil {
		return 0, err
	}
	if enc == nil {
		return 0, &MissingNodeError{NodeHash: hash}
	}
	n, err := t.nodeFromEncoded(enc)
	if err != nil {
		return 0, err
	}
	return t.storage.alloc(storedCached{node: n, hash: hash}), nil
}

// nodeFromEncoded decodes a node without materializing its children:
// hash references stay hash handles, inline children are decoded
// recursively into the arena.
func (t *TrieDBMut) nodeFromEncoded(data []byte) (node, error) {
	dec, err := t.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	switch dec.Kind {
	case KindEmpty:
		return emptyNode{}, nil
	case KindLeaf:
		return &leafNode{key: dec.Partial, value: common.CopyBytes(dec.Value)}, nil
	case KindExtension:
		child, err := t.inlineOrHash(dec.Child)
		if err != nil {
			return nil, err
		}
		return &extensionNode{key: dec.Partial, child: child}, nil
	case KindBranch:
		n := &branchNode{}
		for i, ref := range dec.Branch {
			if ref == nil {
				continue
			}
			child, err := t.inlineOrHash(ref)
			if err != nil {
				return nil, err
			}
			n.children[i] = child
		}
		if dec.Value != nil {
			n.value = common.CopyBytes(dec.Value)
		}
		return n, nil
	default:
		panic("unhandled decoded node kind")
	}
}

// inlineOrHash turns a raw child reference into a handle: a slice of
// hash width is a back-reference into the store, anything else is an
// embedded node which is loaded into the arena right away.
func (t *TrieDBMut) inlineOrHash(ref []byte) (nodeHandle, error) {
	if h, ok := t.codec.TryDecodeHash(ref); ok {
		return hashHandle(h), nil
	}
	n, err := t.nodeFromEncoded(ref)
	if err != nil {
		return nil, err
	}
	return inMemory(t.storage.alloc(storedNew{node: n})), nil
}

// inspect applies inspector to a stored node and reconciles the action
// with the node's provenance: replacing or deleting a cached node puts
// its original hash on death row. live is false when the node was
// deleted.
func (t *TrieDBMut) inspect(st stored, inspector func(node) (action, error)) (newStored stored, changed, live bool, err error) {
	switch st := st.(type) {
	case storedNew:
		act, err := inspector(st.node)
		if err != nil {
			return nil, false, false, err
		}
		switch act.kind {
		case restoreAction:
			return storedNew{node: act.node}, false, true, nil
		case replaceAction:
			return storedNew{node: act.node}, true, true, nil
		default:
			return nil, false, false, nil
		}
	case storedCached:
		act, err := inspector(st.node)
		if err != nil {
			return nil, false, false, err
		}
		switch act.kind {
		case restoreAction:
			return storedCached{node: act.node, hash: st.hash}, false, true, nil
		case replaceAction:
			t.deathRow[st.hash] = struct{}{}
			return storedNew{node: act.node}, true, true, nil
		default:
			t.deathRow[st.hash] = struct{}{}
			return nil, false, false, nil
		}
	default:
		panic("unhandled stored node")
	}
}

// insertAt inserts value at partial under the node referenced by handle,
// materializing it first if necessary.
func (t *TrieDBMut) insertAt(handle nodeHandle, partial, value []byte, oldVal *[]byte) (storageHandle, bool, error) {
	var h storageHandle
	switch hh := handle.(type) {
	case inMemory:
		h = storageHandle(hh)
	case hashHandle:
		var err error
		h, err = t.cache(common.Hash(hh))
		if err != nil {
			return 0, false, err
		}
	default:
		panic("unhandled node handle")
	}
	st, changed, live, err := t.inspect(t.storage.destroy(h), func(n node) (action, error) {
		return t.insertInspector(n, partial, value, oldVal)
	})
	if err != nil {
		return 0, false, err
	}
	if !live {
		panic("insertion never deletes")
	}
	return t.storage.alloc(st), changed, nil
}

// insertInspector decides, per node shape, how the tree is restructured
// around the new (partial, value) pair. It never returns a delete.
func (t *TrieDBMut) insertInspector(n node, partial, value []byte, oldVal *[]byte) (action, error) {
	switch n := n.(type) {
	case emptyNode:
		return replaceWith(&leafNode{key: partial, value: value}), nil

	case *branchNode:
		if len(partial) == 0 {
			unchanged := bytes.Equal(n.value, value)
			*oldVal = n.value
			n.value = value
			if unchanged {
				return restore(n), nil
			}
			return replaceWith(n), nil
		}
		idx := partial[0]
		if child := n.children[idx]; child != nil {
			// Original had something there; recurse down into it.
			newChild, changed, err := t.insertAt(child, partial[1:], value, oldVal)
			if err != nil {
				return action{}, err
			}
			n.children[idx] = inMemory(newChild)
			if !changed {
				// The child didn't change, so our branch is untouched too.
				return restore(n), nil
			}
		} else {
			// Nothing there; compose a leaf.
			leaf := t.storage.alloc(storedNew{node: &leafNode{key: partial[1:], value: value}})
			n.children[idx] = inMemory(leaf)
		}
		return replaceWith(n), nil

	case *leafNode:
		existing := n.key
		cp := prefixLen(partial, existing)
		switch {
		case cp == len(existing) && cp == len(partial):
			// Equivalent leaf: overwrite the value.
			unchanged := bytes.Equal(n.value, value)
			*oldVal = n.value
			n.value = value
			if unchanged {
				return restore(n), nil
			}
			return replaceWith(n), nil

		case cp == 0:
			// No common prefix: transmute into a branch.
			branch := &branchNode{}
			if len(existing) == 0 {
				branch.value = n.value
			} else {
				leaf := &leafNode{key: existing[1:], value: n.value}
				branch.children[existing[0]] = inMemory(t.storage.alloc(storedNew{node: leaf}))
			}
			// Always replace: whatever comes out is not the leaf we
			// started with.
			act, err := t.insertInspector(branch, partial, value, oldVal)
			if err != nil {
				return action{}, err
			}
			return replaceWith(act.node), nil

		case cp == len(existing):
			// Fully-shared prefix: make a stub branch under an extension
			// and augment the branch.
			branch := &branchNode{value: n.value}
			act, err := t.insertInspector(branch, partial[cp:], value, oldVal)
			if err != nil {
				return action{}, err
			}
			handle := t.storage.alloc(storedNew{node: act.node})
			return replaceWith(&extensionNode{key: existing, child: inMemory(handle)}), nil

		default:
			// Partially-shared prefix: strip the shared part into an
			// extension; augmenting the shortened leaf takes the cp == 0
			// route above and creates the branch.
			low := &leafNode{key: existing[cp:], value: n.value}
			act, err := t.insertInspector(low, partial[cp:], value, oldVal)
			if err != nil {
				return action{}, err
			}
			handle := t.storage.alloc(storedNew{node: act.node})
			return replaceWith(&extensionNode{key: existing[:cp], child: inMemory(handle)}), nil
		}

	case *extensionNode:
		existing := n.key
		cp := prefixLen(partial, existing)
		switch {
		case cp == 0:
			// Extensions may not have empty partial keys.
			if len(existing) == 0 {
				panic("extension node with empty key")
			}
			branch := &branchNode{}
			if len(existing) == 1 {
				branch.children[existing[0]] = n.child
			} else {
				ext := &extensionNode{key: existing[1:], child: n.child}
				branch.children[existing[0]] = inMemory(t.storage.alloc(storedNew{node: ext}))
			}
			act, err := t.insertInspector(branch, partial, value, oldVal)
			if err != nil {
				return action{}, err
			}
			return replaceWith(act.node), nil

		case cp == len(existing):
			// Fully-shared prefix: insert into the child branch.
			newChild, changed, err := t.insertAt(n.child, partial[cp:], value, oldVal)
			if err != nil {
				return action{}, err
			}
			n.child = inMemory(newChild)
			if !changed {
				return restore(n), nil
			}
			return replaceWith(n), nil

		default:
			// Partially-shared: split at the common prefix.
			low := &extensionNode{key: existing[cp:], child: n.child}
			act, err := t.insertInspector(low, partial[cp:], value, oldVal)
			if err != nil {
				return action{}, err
			}
			handle := t.storage.alloc(storedNew{node: act.node})
			return replaceWith(&extensionNode{key: existing[:cp], child: inMemory(handle)}), nil
		}

	default:
		panic("unhandled node type")
	}
}

// removeAt removes the value at partial under the node referenced by
// handle. live is false when the whole subtree was deleted.
func (t *TrieDBMut) removeAt(handle nodeHandle, partial []byte, oldVal *[]byte) (newHandle storageHandle, changed, live bool, err error) {
	var h storageHandle
	switch hh := handle.(type) {
	case inMemory:
		h = storageHandle(hh)
	case hashHandle:
		h, err = t.cache(common.Hash(hh))
		if err != nil {
			return 0, false, false, err
		}
	default:
		panic("unhandled node handle")
	}
	st, changed, live, err := t.inspect(t.storage.destroy(h), func(n node) (action, error) {
		return t.removeInspector(n, partial, oldVal)
	})
	if err != nil || !live {
		return 0, false, false, err
	}
	return t.storage.alloc(st), changed, true, nil
}

// removeInspector decides, per node shape, how removal restructures the
// tree, delegating the cleanup of under-full nodes to fix.
func (t *TrieDBMut) removeInspector(n node, partial []byte, oldVal *[]byte) (action, error) {
	switch n := n.(type) {
	case emptyNode:
		return remove(), nil

	case *leafNode:
		if bytes.Equal(n.key, partial) {
			*oldVal = n.value
			return remove(), nil
		}
		// Wrong partial: leave the node alone.
		return restore(n), nil

	case *branchNode:
		if len(partial) == 0 {
			if n.value == nil {
				return restore(n), nil
			}
			// Took the value out; the branch may now be under-full.
			*oldVal = n.value
			n.value = nil
			fixed, err := t.fix(n)
			if err != nil {
				return action{}, err
			}
			return replaceWith(fixed), nil
		}
		idx := partial[0]
		child := n.children[idx]
		if child == nil {
			return restore(n), nil
		}
		n.children[idx] = nil
		newChild, changed, live, err := t.removeAt(child, partial[1:], oldVal)
		if err != nil {
			return action{}, err
		}
		if live {
			n.children[idx] = inMemory(newChild)
			if changed {
				return replaceWith(n), nil
			}
			return restore(n), nil
		}
		// The child we descended into was deleted entirely.
		fixed, err := t.fix(n)
		if err != nil {
			return action{}, err
		}
		return replaceWith(fixed), nil

	case *extensionNode:
		cp := prefixLen(n.key, partial)
		if cp < len(n.key) {
			// Partway through the extension: nothing to do here.
			return restore(n), nil
		}
		newChild, changed, live, err := t.removeAt(n.child, partial[cp:], oldVal)
		if err != nil {
			return action{}, err
		}
		if !live {
			// The whole child branch was deleted, so this extension is
			// useless.
			return remove(), nil
		}
		n.child = inMemory(newChild)
		if !changed {
			return restore(n), nil
		}
		fixed, err := t.fix(n)
		if err != nil {
			return action{}, err
		}
		return replaceWith(fixed), nil

	default:
		panic("unhandled node type")
	}
}

// fix restores the shape invariants around a node that removal may have
// left under-full: a branch keeps at least two of children-or-value, and
// an extension is always followed by a branch. Multi-hop chains collapse
// through the recursive calls.
func (t *TrieDBMut) fix(n node) (node, error) {
	switch n := n.(type) {
	case *branchNode:
		usedIndex := -1 // -2 once more than one child is live
		for i := 0; i < 16; i++ {
			if n.children[i] == nil {
				continue
			}
			if usedIndex == -1 {
				usedIndex = i
			} else {
				usedIndex = -2
				break
			}
		}
		switch {
		case usedIndex == -1 && n.value == nil:
			panic("branch with no subvalues")
		case usedIndex >= 0 && n.value == nil:
			// Only one onward node: make an extension.
			child := n.children[usedIndex]
			n.children[usedIndex] = nil
			return t.fix(&extensionNode{key: []byte{byte(usedIndex)}, child: child})
		case usedIndex == -1:
			// No children left: make a leaf.
			return &leafNode{key: []byte{}, value: n.value}, nil
		default:
			// All is well.
			return n, nil
		}

	case *extensionNode:
		var st stored
		switch child := n.child.(type) {
		case inMemory:
			st = t.storage.destroy(storageHandle(child))
		case hashHandle:
			h, err := t.cache(common.Hash(child))
			if err != nil {
				return nil, err
			}
			st = t.storage.destroy(h)
		default:
			panic("unhandled node handle")
		}
		childNode := st.storedNode()
		cached, wasCached := st.(storedCached)

		switch child := childNode.(type) {
		case *extensionNode:
			// Combine with the node below; its old encoding is dead.
			if wasCached {
				t.deathRow[cached.hash] = struct{}{}
			}
			return t.fix(&extensionNode{key: concat(n.key, child.key...), child: child.child})
		case *leafNode:
			if wasCached {
				t.deathRow[cached.hash] = struct{}{}
			}
			return &leafNode{key: concat(n.key, child.key...), value: child.value}, nil
		default:
			// A genuine branch: reallocate it unchanged.
			if wasCached {
				n.child = inMemory(t.storage.alloc(cached))
			} else {
				n.child = inMemory(t.storage.alloc(storedNew{node: childNode}))
			}
			return n, nil
		}

	default:
		// Only branches and extensions need fixing.
		return n, nil
	}
}

// Commit writes the in-memory changes to the backing store, freeing
// their arena slots and updating the external root cell. Superseded node
// hashes are removed from the store first. Committing with no pending
// changes is a no-op.
func (t *TrieDBMut) Commit() {
	for hash := range t.deathRow {
		t.db.Remove(hash)
		death_row_cnt.Inc(1)
	}
	if len(t.deathRow) > 0 {
		t.deathRow = make(map[common.Hash]struct{})
	}

	var handle storageHandle
	switch h := t.rootHandle.(type) {
	case hashHandle:
		return // no changes necessary
	case inMemory:
		handle = storageHandle(h)
	default:
		panic("unhandled node handle")
	}

	switch st := t.storage.destroy(handle).(type) {
	case storedNew:
		// The root is always hashed and written, never inlined.
		enc := t.encodeNode(st.node)
		*t.root = t.db.Insert(enc)
		t.hashCount++
		commit_write_cnt.Inc(1)
		t.rootHandle = hashHandle(*t.root)
	case storedCached:
		*t.root = st.hash
		t.rootHandle = inMemory(t.storage.alloc(st))
	default:
		panic("unhandled stored node")
	}
}

// encodeNode encodes a node bottom-up, committing children through
// commitChild as it goes.
func (t *TrieDBMut) encodeNode(n node) []byte {
	switch n := n.(type) {
	case emptyNode:
		return t.codec.EmptyNode()
	case *leafNode:
		return t.codec.LeafNode(n.key, n.value)
	case *extensionNode:
		return t.codec.ExtensionNode(n.key, t.commitChild(n.child))
	case *branchNode:
		var children [16]*ChildReference
		for i, child := range n.children {
			if child == nil {
				continue
			}
			ref := t.commitChild(child)
			children[i] = &ref
		}
		return t.codec.BranchNode(&children, n.value)
	default:
		panic("unhandled node type")
	}
}

// commitChild encodes and writes a child subtree, returning the
// reference to embed in the parent. Unmodified cached nodes keep their
// original hash without re-encoding; new encodings smaller than the hash
// width are inlined into the parent instead of being written separately.
func (t *TrieDBMut) commitChild(handle nodeHandle) ChildReference {
	switch h := handle.(type) {
	case hashHandle:
		return ChildReference{Hash: common.Hash(h)}
	case inMemory:
		switch st := t.storage.destroy(storageHandle(h)).(type) {
		case storedCached:
			return ChildReference{Hash: st.hash}
		case storedNew:
			enc := t.encodeNode(st.node)
			if len(enc) >= common.HashLength {
				hash := t.db.Insert(enc)
				t.hashCount++
				commit_write_cnt.Inc(1)
				return ChildReference{Hash: hash}
			}
			return ChildReference{Inline: enc}
		default:
			panic("unhandled stored node")
		}
	default:
		panic("unhandled node handle")
	}
}
