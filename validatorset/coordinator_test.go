package validatorset_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/validatorset"
)

func testKeys(t *testing.T, n int) [][]byte {
	t.Helper()
	keys := make([][]byte, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = crypto.CompressPubkey(&key.PublicKey)
	}
	return keys
}

func testParams() validatorset.Params {
	return validatorset.Params{
		SourceAddress:         common.HexToAddress("0x6D6f646C657468792D6272670000000000000000"),
		DestinationAddress:    common.HexToAddress("0x2d14AB747ae846B7a8aB5E2a77aCAD0e09B62Bd2"),
		ProofThresholdPercent: 66,
		MaxXrplKeys:           8,
		MaxNewSigners:         20,
	}
}

func newCoordinator(t *testing.T, params validatorset.Params) (*validatorset.Coordinator, *bridge.Controller) {
	t.Helper()
	b := bridge.NewController(logging.New())
	return validatorset.NewCoordinator(logging.New(), b, params), b
}

func TestCoordinatorBootstrap(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t, testParams())
	keys := testKeys(t, 5)
	require.NoError(t, c.Bootstrap(keys, 3))

	require.Equal(t, keys, c.NotaryKeys())
	require.EqualValues(t, 3, c.NotarySetID())
	require.False(t, c.ChangeInProgress())
	require.Empty(t, c.NotaryXrplKeys())

	set := c.EthValidatorSet()
	require.EqualValues(t, 3, set.ID)
	require.Len(t, set.Validators, 5)
	// ceil(66% of 5)
	require.EqualValues(t, 4, set.ProofThreshold)

	require.Error(t, c.Bootstrap([][]byte{{0x02}}, 0))
}

func TestCoordinatorSetXrplDoorSignersReplacesAll(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t, testParams())
	keys := testKeys(t, 4)
	require.NoError(t, c.Bootstrap(keys, 0))

	require.NoError(t, c.SetXrplDoorSigners([][]byte{keys[0], keys[1]}))
	require.Equal(t, [][]byte{keys[0], keys[1]}, c.NotaryXrplKeys())

	// a later call fully replaces the registry, earlier flags are dropped
	require.NoError(t, c.SetXrplDoorSigners([][]byte{keys[1], keys[2]}))
	require.Equal(t, [][]byte{keys[1], keys[2]}, c.NotaryXrplKeys())

	// clearing works the same way
	require.NoError(t, c.SetXrplDoorSigners(nil))
	require.Empty(t, c.NotaryXrplKeys())
}

func TestCoordinatorXrplKeySelection(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.MaxXrplKeys = 2
	c, _ := newCoordinator(t, params)
	keys := testKeys(t, 4)
	require.NoError(t, c.Bootstrap(keys, 0))

	// more flagged signers than MaxXrplKeys: first two in set order win
	require.NoError(t, c.SetXrplDoorSigners([][]byte{keys[3], keys[1], keys[0]}))
	require.Equal(t, [][]byte{keys[0], keys[1]}, c.NotaryXrplKeys())

	set := c.XrplValidatorSet()
	require.Len(t, set.Validators, 2)
	require.EqualValues(t, 1, set.ProofThreshold)

	params.MaxNewSigners = 1
	limited := validatorset.NewCoordinator(logging.New(), bridge.NewController(logging.New()), params)
	require.ErrorIs(t, limited.SetXrplDoorSigners([][]byte{keys[0], keys[1]}), validatorset.ErrTooManySigners)
}

func TestCoordinatorValidatorSetChange(t *testing.T) {
	t.Parallel()

	c, b := newCoordinator(t, testParams())
	current := testKeys(t, 3)
	next := testKeys(t, 3)
	require.NoError(t, c.Bootstrap(current, 0))
	require.NoError(t, c.SetXrplDoorSigners([][]byte{current[0], next[0]}))

	require.ErrorIs(t, c.StartValidatorSetChange(), validatorset.ErrEmptyNextKeys)
	require.ErrorIs(t, c.FinaliseValidatorSetChange(next), validatorset.ErrNoChangeInProgress)

	require.NoError(t, c.ScheduleNextKeys(next))
	require.NoError(t, c.StartValidatorSetChange())
	require.True(t, c.ChangeInProgress())
	require.Equal(t, bridge.StatePaused, b.State())
	require.ErrorIs(t, c.StartValidatorSetChange(), validatorset.ErrChangeInProgress)

	// door signer subset changes from {current[0]} to {next[0]},
	// so both an ethereum and an xrpl payload are witnessed
	ethProofID, xrplProofID := c.ChangeProofIDs()
	require.NotZero(t, ethProofID)
	require.NotZero(t, xrplProofID)

	req := <-b.Requests()
	require.Equal(t, entity.ChainIDEthereum, req.ChainID)
	require.Equal(t, ethProofID, req.EventID)
	req = <-b.Requests()
	require.Equal(t, entity.ChainIDXrpl, req.ChainID)
	require.Equal(t, xrplProofID, req.EventID)

	require.ErrorIs(t, c.FinaliseValidatorSetChange(current), validatorset.ErrKeyMismatch)
	require.NoError(t, c.FinaliseValidatorSetChange(next))
	require.False(t, c.ChangeInProgress())
	require.Equal(t, bridge.StateActive, b.State())
	require.EqualValues(t, 1, c.NotarySetID())
	require.Equal(t, next, c.NotaryKeys())
	require.Empty(t, c.NextNotaryKeys())
	require.Equal(t, [][]byte{next[0]}, c.NotaryXrplKeys())
}

func TestCoordinatorSkipsXrplProofWhenSignersUnchanged(t *testing.T) {
	t.Parallel()

	c, b := newCoordinator(t, testParams())
	current := testKeys(t, 3)
	extra := testKeys(t, 1)
	next := [][]byte{current[0], current[1], extra[0]}
	require.NoError(t, c.Bootstrap(current, 0))
	require.NoError(t, c.SetXrplDoorSigners([][]byte{current[0], current[1]}))

	require.NoError(t, c.ScheduleNextKeys(next))
	require.NoError(t, c.StartValidatorSetChange())

	ethProofID, xrplProofID := c.ChangeProofIDs()
	require.NotZero(t, ethProofID)
	require.Zero(t, xrplProofID)

	req := <-b.Requests()
	require.Equal(t, entity.ChainIDEthereum, req.ChainID)
	select {
	case req = <-b.Requests():
		require.Fail(t, "unexpected extra request", "event %d", req.EventID)
	default:
	}
}
