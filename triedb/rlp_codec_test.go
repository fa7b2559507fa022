package triedb

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/go-triedb/hashdb"
)

func testCodec() *RlpNodeCodec {
	return NewRlpNodeCodec(hashdb.KeccakHasher{})
}

func TestCodecNullNode(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	assert.Equal([]byte{0x80}, codec.EmptyNode())
	assert.True(codec.IsEmptyNode(codec.EmptyNode()))
	assert.Equal(
		common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421"),
		codec.HashedNullNode(),
	)

	dec, err := codec.Decode(codec.EmptyNode())
	assert.NoError(err)
	assert.Equal(KindEmpty, dec.Kind)
}

func TestCodecLeaf(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	partial := []byte{1, 2, 3, 4, 5}
	value := []byte("cat")
	enc := codec.LeafNode(partial, value)

	dec, err := codec.Decode(enc)
	assert.NoError(err)
	assert.Equal(KindLeaf, dec.Kind)
	assert.Equal(partial, dec.Partial)
	assert.Equal(value, dec.Value)
}

func TestCodecExtension(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	partial := []byte{0xf, 3}
	child := ChildReference{Hash: common.HexToHash("deadbeef")}
	enc := codec.ExtensionNode(partial, child)

	dec, err := codec.Decode(enc)
	assert.NoError(err)
	assert.Equal(KindExtension, dec.Kind)
	assert.Equal(partial, dec.Partial)
	h, isHash := codec.TryDecodeHash(dec.Child)
	assert.True(isHash)
	assert.Equal(child.Hash, h)
}

func TestCodecExtensionInlineChild(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	inline := codec.LeafNode([]byte{5}, []byte("dog"))
	require.True(t, len(inline) < common.HashLength)
	enc := codec.ExtensionNode([]byte{1, 2}, ChildReference{Inline: inline})

	dec, err := codec.Decode(enc)
	assert.NoError(err)
	assert.Equal(KindExtension, dec.Kind)
	_, isHash := codec.TryDecodeHash(dec.Child)
	assert.False(isHash)
	assert.Equal(inline, dec.Child)
}

func TestCodecBranch(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	inline := codec.LeafNode([]byte{}, []byte("dog"))
	var children [16]*ChildReference
	children[3] = &ChildReference{Hash: common.HexToHash("0badc0de")}
	children[7] = &ChildReference{Inline: inline}
	enc := codec.BranchNode(&children, []byte("verb"))

	dec, err := codec.Decode(enc)
	assert.NoError(err)
	assert.Equal(KindBranch, dec.Kind)
	assert.Equal([]byte("verb"), dec.Value)
	for i := 0; i < 16; i++ {
		switch i {
		case 3:
			h, isHash := codec.TryDecodeHash(dec.Branch[i])
			assert.True(isHash)
			assert.Equal(children[3].Hash, h)
		case 7:
			assert.Equal(inline, dec.Branch[i])
		default:
			assert.Nil(dec.Branch[i])
		}
	}
}

func TestCodecBranchNoValue(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	var children [16]*ChildReference
	children[0] = &ChildReference{Hash: common.HexToHash("01")}
	children[15] = &ChildReference{Hash: common.HexToHash("02")}
	enc := codec.BranchNode(&children, nil)

	dec, err := codec.Decode(enc)
	assert.NoError(err)
	assert.Equal(KindBranch, dec.Kind)
	assert.Nil(dec.Value)
}

func TestCodecRejectsMalformed(t *testing.T) {
	assert := assert.New(t)
	codec := testCodec()

	_, err := codec.Decode(nil)
	assert.Error(err)
	_, err = codec.Decode([]byte{0xc0}) // zero-item list
	assert.Error(err)
	// Three-item list.
	_, err = codec.Decode([]byte{0xc3, 0x01, 0x02, 0x03})
	assert.Error(err)
	// A child hash of the wrong width.
	_, err = codec.Decode(mustEncodeList(
		[]byte{0x00, 0x12}, // even-length extension partial
		[]byte{0xde, 0xad},
	))
	assert.Error(err)
}
