package witness_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/witness"
)

func newKeystores(t *testing.T, n int) []*witness.Keystore {
	t.Helper()
	keystores := make([]*witness.Keystore, n)
	for i := range keystores {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keystores[i] = witness.NewKeystore(key)
	}
	return keystores
}

func keysOf(keystores []*witness.Keystore) [][]byte {
	keys := make([][]byte, len(keystores))
	for i, ks := range keystores {
		keys[i] = ks.PublicKey()
	}
	return keys
}

func signWitness(t *testing.T, ks *witness.Keystore, chainID entity.ChainID, eventID, setID uint64, data []byte) *entity.Witness {
	t.Helper()
	digest, err := witness.DataToDigest(chainID, data, ks.PublicKey())
	require.NoError(t, err)
	sig, err := ks.SignPrehashed(digest)
	require.NoError(t, err)
	return &entity.Witness{
		ChainID:        chainID,
		EventID:        eventID,
		ValidatorSetID: setID,
		Digest:         digest,
		AuthorityID:    ks.PublicKey(),
		Signature:      sig,
	}
}

func TestRecordNoteEventWitness(t *testing.T) {
	t.Parallel()

	keystores := newKeystores(t, 3)
	set := entity.NewValidatorSet(keysOf(keystores), 1, 2)
	rec := witness.NewRecord()
	rec.SetValidatorSets(set, nil)

	data := crypto.Keccak256([]byte("payload"))
	rec.NoteEventMetadata(1, entity.ChainIDEthereum, data, common.HexToHash("0x11"))

	status, err := rec.NoteEventWitness(signWitness(t, keystores[1], entity.ChainIDEthereum, 1, 1, data))
	require.NoError(t, err)
	require.Equal(t, witness.WitnessVerified, status)
	require.False(t, rec.HasConsensus(1, entity.ChainIDEthereum))

	// same authority again is a duplicate
	_, err = rec.NoteEventWitness(signWitness(t, keystores[1], entity.ChainIDEthereum, 1, 1, data))
	require.ErrorIs(t, err, witness.ErrDuplicateWitness)

	status, err = rec.NoteEventWitness(signWitness(t, keystores[0], entity.ChainIDEthereum, 1, 1, data))
	require.NoError(t, err)
	require.Equal(t, witness.WitnessVerified, status)
	require.True(t, rec.HasConsensus(1, entity.ChainIDEthereum))

	sigs := rec.Signatures(1)
	require.Len(t, sigs, 2)
	// ordered by authority index regardless of arrival order
	require.EqualValues(t, 0, sigs[0].AuthorityIndex)
	require.EqualValues(t, 1, sigs[1].AuthorityIndex)
}

func TestRecordRejectsBadWitnesses(t *testing.T) {
	t.Parallel()

	keystores := newKeystores(t, 2)
	outsider := newKeystores(t, 1)[0]
	set := entity.NewValidatorSet(keysOf(keystores), 1, 2)
	rec := witness.NewRecord()
	rec.SetValidatorSets(set, nil)

	data := crypto.Keccak256([]byte("payload"))
	rec.NoteEventMetadata(1, entity.ChainIDEthereum, data, common.Hash{})

	_, err := rec.NoteEventWitness(signWitness(t, outsider, entity.ChainIDEthereum, 1, 1, data))
	require.ErrorIs(t, err, witness.ErrUnknownAuthority)

	wrongDigest := signWitness(t, keystores[0], entity.ChainIDEthereum, 1, 1, crypto.Keccak256([]byte("other")))
	_, err = rec.NoteEventWitness(wrongDigest)
	require.ErrorIs(t, err, witness.ErrMismatchedDigest)

	forged := signWitness(t, keystores[0], entity.ChainIDEthereum, 1, 1, data)
	forged.Signature = signWitness(t, keystores[1], entity.ChainIDEthereum, 1, 1, data).Signature
	_, err = rec.NoteEventWitness(forged)
	require.ErrorIs(t, err, witness.ErrInvalidSignature)

	require.Empty(t, rec.Signatures(1))
}

func TestRecordParksWitnessesUntilMetadata(t *testing.T) {
	t.Parallel()

	keystores := newKeystores(t, 3)
	set := entity.NewValidatorSet(keysOf(keystores), 1, 2)
	rec := witness.NewRecord()
	rec.SetValidatorSets(set, nil)

	data := crypto.Keccak256([]byte("payload"))

	status, err := rec.NoteEventWitness(signWitness(t, keystores[0], entity.ChainIDEthereum, 7, 1, data))
	require.NoError(t, err)
	require.Equal(t, witness.WitnessUnverified, status)
	status, err = rec.NoteEventWitness(signWitness(t, keystores[2], entity.ChainIDEthereum, 7, 1, crypto.Keccak256([]byte("bogus"))))
	require.NoError(t, err)
	require.Equal(t, witness.WitnessUnverified, status)
	require.Empty(t, rec.Signatures(7))

	rec.NoteEventMetadata(7, entity.ChainIDEthereum, data, common.Hash{})
	verified := rec.ProcessUnverifiedWitnesses(7, logging.New())

	// the valid parked witness counted, the bogus one was dropped
	require.Len(t, verified, 1)
	require.Equal(t, keystores[0].PublicKey(), verified[0].AuthorityID)
	sigs := rec.Signatures(7)
	require.Len(t, sigs, 1)
	require.EqualValues(t, 0, sigs[0].AuthorityIndex)
}

func TestRecordXrplCountsDoorSignersOnly(t *testing.T) {
	t.Parallel()

	keystores := newKeystores(t, 4)
	ethSet := entity.NewValidatorSet(keysOf(keystores), 1, 3)
	xrplSet := entity.NewValidatorSet(keysOf(keystores[:2]), 1, 1)
	rec := witness.NewRecord()
	rec.SetValidatorSets(ethSet, xrplSet)

	blob := []byte{0x12, 0x00, 0x0c}
	rec.NoteEventMetadata(3, entity.ChainIDXrpl, blob, common.Hash{})

	// a validator outside the door signer subset is not an xrpl authority
	_, err := rec.NoteEventWitness(signWitness(t, keystores[3], entity.ChainIDXrpl, 3, 1, blob))
	require.ErrorIs(t, err, witness.ErrUnknownAuthority)
	require.False(t, rec.HasConsensus(3, entity.ChainIDXrpl))

	_, err = rec.NoteEventWitness(signWitness(t, keystores[1], entity.ChainIDXrpl, 3, 1, blob))
	require.NoError(t, err)
	require.True(t, rec.HasConsensus(3, entity.ChainIDXrpl))
}

func TestRecordMarkComplete(t *testing.T) {
	t.Parallel()

	keystores := newKeystores(t, 2)
	set := entity.NewValidatorSet(keysOf(keystores), 1, 1)
	rec := witness.NewRecord()
	rec.SetValidatorSets(set, nil)

	data := crypto.Keccak256([]byte("payload"))
	for _, id := range []uint64{1, 2, 3, 7} {
		rec.NoteEventMetadata(id, entity.ChainIDEthereum, data, common.Hash{})
		rec.MarkComplete(id)
	}

	// contiguous head got collapsed into a watermark covering 1..3
	for _, id := range []uint64{1, 2, 3, 7} {
		_, err := rec.NoteEventWitness(signWitness(t, keystores[0], entity.ChainIDEthereum, id, 1, data))
		require.ErrorIs(t, err, witness.ErrCompletedEvent, "event %d", id)
	}

	// a fresh id in the gap is still accepted
	rec.NoteEventMetadata(5, entity.ChainIDEthereum, data, common.Hash{})
	_, err := rec.NoteEventWitness(signWitness(t, keystores[0], entity.ChainIDEthereum, 5, 1, data))
	require.NoError(t, err)
}
