package memorydb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paritytech/go-triedb/hashdb"
)

var nullNodeData = []byte{0x80}

func newTestDB() *Database {
	return New(hashdb.KeccakHasher{}, nullNodeData)
}

func TestInsertGet(t *testing.T) {
	assert := assert.New(t)
	db := newTestDB()

	hello := []byte("Hello world!")
	key := db.Insert(hello)
	assert.Equal(hashdb.KeccakHasher{}.Hash(hello), key)

	v, err := db.Get(key)
	assert.NoError(err)
	assert.Equal(hello, v)
	assert.True(db.Contains(key))
	assert.Equal(1, db.Len())
}

func TestNullNodeIsVirtual(t *testing.T) {
	assert := assert.New(t)
	db := newTestDB()

	nullKey := hashdb.KeccakHasher{}.Hash(nullNodeData)
	assert.True(db.Contains(nullKey))
	v, err := db.Get(nullKey)
	assert.NoError(err)
	assert.Equal(nullNodeData, v)

	// Inserting or removing the null node never touches storage.
	assert.Equal(nullKey, db.Insert(nullNodeData))
	db.Remove(nullKey)
	assert.True(db.Contains(nullKey))
	assert.Equal(0, db.Len())
	assert.Empty(db.Keys())
}

func TestRemoveBeforeInsert(t *testing.T) {
	assert := assert.New(t)
	db := newTestDB()

	hello := []byte("Hello world!")
	key := hashdb.KeccakHasher{}.Hash(hello)

	db.Remove(key)
	assert.False(db.Contains(key))
	_, rc, ok := db.Raw(key)
	assert.True(ok)
	assert.Equal(int32(-1), rc)

	// The insertion cancels the journaled removal.
	db.Insert(hello)
	assert.False(db.Contains(key))
	v, err := db.Get(key)
	assert.NoError(err)
	assert.Nil(v)

	// A second insertion brings the entry back to life with a fresh
	// payload.
	db.Insert(hello)
	assert.True(db.Contains(key))
	v, err = db.Get(key)
	assert.NoError(err)
	assert.Equal(hello, v)
}

func TestRefcounting(t *testing.T) {
	assert := assert.New(t)
	db := newTestDB()

	value := []byte("refcounted")
	key := db.Insert(value)
	db.Insert(value)
	db.Insert(value)

	keys := db.Keys()
	assert.Equal(int32(3), keys[key])

	db.Remove(key)
	db.Remove(key)
	assert.True(db.Contains(key))
	db.Remove(key)
	assert.False(db.Contains(key))

	// Dead, not deleted, until purged.
	_, rc, ok := db.Raw(key)
	assert.True(ok)
	assert.Equal(int32(0), rc)
	db.Purge()
	_, _, ok = db.Raw(key)
	assert.False(ok)
}

func TestConsolidate(t *testing.T) {
	assert := assert.New(t)
	main := newTestDB()
	other := newTestDB()

	removeKey := other.Insert([]byte("doggo"))
	main.Remove(removeKey)

	insertKey := other.Insert([]byte("arf"))
	main.Emplace(insertKey, []byte("arf"))

	negativeKey := other.Insert([]byte("negative"))
	other.Remove(negativeKey)
	other.Remove(negativeKey) // rc = -1 in other
	main.Emplace(negativeKey, []byte("negative"))

	main.Consolidate(other)

	_, rc, _ := main.Raw(removeKey)
	assert.Equal(int32(0), rc)
	_, rc, _ = main.Raw(insertKey)
	assert.Equal(int32(2), rc)
	_, rc, _ = main.Raw(negativeKey)
	assert.Equal(int32(0), rc)

	// other was drained.
	assert.Empty(other.Keys())
}

func TestClear(t *testing.T) {
	assert := assert.New(t)
	db := newTestDB()

	db.Insert([]byte("one"))
	db.Insert([]byte("two"))
	assert.Equal(2, db.Len())
	db.Clear()
	assert.Equal(0, db.Len())
}
