package entity_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omni/ethy-witness/entity"
)

func TestMakeProofKey(t *testing.T) {
	t.Parallel()

	key := entity.MakeProofKey(entity.ChainIDEthereum, 0x0102030405060708)
	require.Equal(t, []byte{'E', 'T', 'H', 'Y', 1, 1, 2, 3, 4, 5, 6, 7, 8}, key)

	key = entity.MakeProofKey(entity.ChainIDXrpl, 1)
	require.Equal(t, []byte{'E', 'T', 'H', 'Y', 2, 0, 0, 0, 0, 0, 0, 0, 1}, key)

	// keys of distinct chains never collide for the same event id
	require.False(t, bytes.Equal(
		entity.MakeProofKey(entity.ChainIDEthereum, 7),
		entity.MakeProofKey(entity.ChainIDXrpl, 7),
	))
}

func TestEventProofExpandedSignatures(t *testing.T) {
	t.Parallel()

	sig1 := bytes.Repeat([]byte{0xaa}, 65)
	sig2 := bytes.Repeat([]byte{0xbb}, 65)
	proof := &entity.EventProof{
		Signatures: entity.AuthoritySignatures{
			{AuthorityIndex: 0, Signature: sig1},
			{AuthorityIndex: 3, Signature: sig2},
		},
	}

	require.Equal(t, 2, proof.SignatureCount())
	require.Equal(t, [][]byte{sig1, {}, {}, sig2, {}}, proof.ExpandedSignatures(5))

	// indexes beyond the set size are dropped rather than panicking
	require.Equal(t, [][]byte{sig1, {}}, proof.ExpandedSignatures(2))
}

func TestAuthoritySignaturesValueScan(t *testing.T) {
	t.Parallel()

	sigs := entity.AuthoritySignatures{
		{AuthorityIndex: 1, Signature: bytes.Repeat([]byte{0x01}, 65)},
		{AuthorityIndex: 4, Signature: bytes.Repeat([]byte{0x02}, 65)},
	}
	val, err := sigs.Value()
	require.NoError(t, err)

	var decoded entity.AuthoritySignatures
	require.NoError(t, decoded.Scan(val))
	require.Equal(t, sigs, decoded)

	require.Error(t, decoded.Scan([]byte{0x01, 0x02}))

	broken := entity.AuthoritySignatures{{AuthorityIndex: 0, Signature: []byte{0x01}}}
	_, err = broken.Value()
	require.Error(t, err)
}

func TestValidatorKeysValueScan(t *testing.T) {
	t.Parallel()

	keys := entity.ValidatorKeys{
		bytes.Repeat([]byte{0x02}, 33),
		bytes.Repeat([]byte{0x03}, 33),
	}
	val, err := keys.Value()
	require.NoError(t, err)

	var decoded entity.ValidatorKeys
	require.NoError(t, decoded.Scan(val))
	require.Equal(t, keys, decoded)

	// an empty column scans into an empty list
	require.NoError(t, decoded.Scan([]byte{}))
	require.Empty(t, decoded)

	require.Error(t, decoded.Scan([]byte{0x01, 0x02}))

	broken := entity.ValidatorKeys{[]byte{0x02}}
	_, err = broken.Value()
	require.Error(t, err)
}

func TestValidatorSetAuthorityIndex(t *testing.T) {
	t.Parallel()

	keys := [][]byte{{0x02, 0x01}, {0x03, 0x02}, {0x02, 0x03}}
	set := entity.NewValidatorSet(keys, 1, 2)

	idx, ok := set.AuthorityIndex(keys[1])
	require.True(t, ok)
	require.EqualValues(t, 1, idx)

	_, ok = set.AuthorityIndex([]byte{0x02, 0xff})
	require.False(t, ok)

	require.False(t, set.IsEmpty())
	require.True(t, (*entity.ValidatorSet)(nil).IsEmpty())
}
