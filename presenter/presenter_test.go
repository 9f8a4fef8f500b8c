package presenter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/presenter"
	"github.com/omni/ethy-witness/repository"
	"github.com/omni/ethy-witness/utils"
	"github.com/omni/ethy-witness/validatorset"
)

type memEventProofsRepo struct {
	mu     sync.Mutex
	proofs map[string]*entity.EventProof
}

func newMemEventProofsRepo() *memEventProofsRepo {
	return &memEventProofsRepo{proofs: make(map[string]*entity.EventProof)}
}

func (r *memEventProofsRepo) Ensure(_ context.Context, proof *entity.EventProof) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proofs[string(proof.ProofKey)] = proof
	return nil
}

func (r *memEventProofsRepo) GetByProofKey(_ context.Context, proofKey []byte) (*entity.EventProof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proofs[string(proofKey)], nil
}

func (r *memEventProofsRepo) GetByEvent(ctx context.Context, chainID entity.ChainID, eventID uint64) (*entity.EventProof, error) {
	return r.GetByProofKey(ctx, entity.MakeProofKey(chainID, eventID))
}

type presenterHarness struct {
	proofs      *memEventProofsRepo
	controller  *bridge.Controller
	coordinator *validatorset.Coordinator
	server      *httptest.Server
}

func newPresenterHarness(t *testing.T, validatorKeys [][]byte, setID uint64, opts ...presenter.Option) *presenterHarness {
	t.Helper()

	h := &presenterHarness{
		proofs:     newMemEventProofsRepo(),
		controller: bridge.NewController(logging.New()),
	}
	h.coordinator = validatorset.NewCoordinator(logging.New(), h.controller, validatorset.Params{
		SourceAddress:         common.HexToAddress("0x6D6f646C657468792D6272670000000000000000"),
		DestinationAddress:    common.HexToAddress("0x2d14AB747ae846B7a8aB5E2a77aCAD0e09B62Bd2"),
		ProofThresholdPercent: 66,
		MaxXrplKeys:           8,
		MaxNewSigners:         20,
	})
	require.NoError(t, h.coordinator.Bootstrap(validatorKeys, setID))

	p := presenter.NewPresenter(logging.New(), &repository.Repo{EventProofs: h.proofs}, h.controller, h.coordinator, opts...)
	h.server = httptest.NewServer(p.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *presenterHarness) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func compressedTestKeys(t *testing.T, n int) [][]byte {
	t.Helper()
	keys := make([][]byte, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = crypto.CompressPubkey(&key.PublicKey)
	}
	return keys
}

func TestGetEthEventProof(t *testing.T) {
	t.Parallel()

	keys := compressedTestKeys(t, 3)
	h := newPresenterHarness(t, keys, 7)

	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = 0x11
	}
	require.NoError(t, h.proofs.Ensure(context.Background(), &entity.EventProof{
		ProofKey:       entity.MakeProofKey(entity.ChainIDEthereum, 42),
		ChainID:        entity.ChainIDEthereum,
		EventID:        42,
		ValidatorSetID: 7,
		Digest:         common.HexToHash("0xaa"),
		Signatures: entity.AuthoritySignatures{
			{AuthorityIndex: 0, Signature: sig},
			{AuthorityIndex: 2, Signature: sig},
		},
		Validators: entity.ValidatorKeys(keys),
	}))

	var res struct {
		EventID        uint64   `json:"event_id"`
		ValidatorSetID uint64   `json:"validator_set_id"`
		Signatures     []string `json:"signatures"`
		Validators     []string `json:"validators"`
		Tag            *string  `json:"tag"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/proof/eth/42", &res))
	require.EqualValues(t, 42, res.EventID)
	require.EqualValues(t, 7, res.ValidatorSetID)
	require.NotNil(t, res.Tag)

	// signer addresses come from the set snapshot stored with the proof
	require.Len(t, res.Validators, 3)
	for i, key := range keys {
		addr, err := utils.EthereumAddress(key)
		require.NoError(t, err)
		require.Equal(t, addr, common.HexToAddress(res.Validators[i]))
	}

	// expanded to validator set positions, index 1 unsigned
	require.Len(t, res.Signatures, 3)
	require.Equal(t, "0x", res.Signatures[1])
	require.NotEqual(t, "0x", res.Signatures[0])
	require.NotEqual(t, "0x", res.Signatures[2])

	require.Equal(t, http.StatusNotFound, h.getJSON(t, "/ethy/proof/eth/43", nil))
	require.Equal(t, http.StatusNotFound, h.getJSON(t, "/ethy/proof/xrpl/42", nil))
}

func TestGetEthEventProofAfterRotation(t *testing.T) {
	t.Parallel()

	keys := compressedTestKeys(t, 3)
	// the coordinator moved on to set 8 with fresh keys
	h := newPresenterHarness(t, compressedTestKeys(t, 4), 8)

	sig := make([]byte, 65)
	require.NoError(t, h.proofs.Ensure(context.Background(), &entity.EventProof{
		ProofKey:       entity.MakeProofKey(entity.ChainIDEthereum, 5),
		ChainID:        entity.ChainIDEthereum,
		EventID:        5,
		ValidatorSetID: 7,
		Signatures: entity.AuthoritySignatures{
			{AuthorityIndex: 1, Signature: sig},
		},
		Validators: entity.ValidatorKeys(keys),
	}))

	var res struct {
		ValidatorSetID uint64   `json:"validator_set_id"`
		Signatures     []string `json:"signatures"`
		Validators     []string `json:"validators"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/proof/eth/5", &res))
	require.EqualValues(t, 7, res.ValidatorSetID)
	require.Len(t, res.Validators, 3)
	require.Len(t, res.Signatures, 3)
	require.NotEqual(t, "0x", res.Signatures[1])
}

func TestGetXrplEventProofSignatureEncoding(t *testing.T) {
	t.Parallel()

	keys := compressedTestKeys(t, 2)
	h := newPresenterHarness(t, keys, 1)

	// high-S signature, expected to be flipped below the half order
	sig := make([]byte, 65)
	sig[31] = 0x01
	n := crypto.S256().Params().N
	s := new(big.Int).Sub(n, big.NewInt(7))
	s.FillBytes(sig[32:64])

	require.NoError(t, h.proofs.Ensure(context.Background(), &entity.EventProof{
		ProofKey:       entity.MakeProofKey(entity.ChainIDXrpl, 9),
		ChainID:        entity.ChainIDXrpl,
		EventID:        9,
		ValidatorSetID: 1,
		Signatures: entity.AuthoritySignatures{
			{AuthorityIndex: 0, Signature: sig},
		},
		Validators: entity.ValidatorKeys(keys),
	}))

	var res struct {
		Validators []string `json:"validators"`
		Signatures []struct {
			Signer    string `json:"signer"`
			Signature string `json:"signature"`
		} `json:"signatures"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/proof/xrpl/9", &res))
	require.Len(t, res.Validators, 2)
	require.Len(t, res.Signatures, 1)
	require.Equal(t, hexutil.Encode(keys[0]), res.Signatures[0].Signer)

	der := common.FromHex(res.Signatures[0].Signature)
	require.EqualValues(t, 0x30, der[0])
	require.EqualValues(t, len(der)-2, der[1])
	require.EqualValues(t, 0x02, der[2])

	rLen := int(der[3])
	require.Equal(t, []byte{0x01}, der[4:4+rLen])
	require.EqualValues(t, 0x02, der[4+rLen])
	sLen := int(der[5+rLen])
	require.Equal(t, []byte{0x07}, der[6+rLen:6+rLen+sLen])
}

func TestGetBridgeState(t *testing.T) {
	t.Parallel()

	h := newPresenterHarness(t, compressedTestKeys(t, 3), 1)

	var res struct {
		State           string `json:"state"`
		NextEventID     uint64 `json:"next_event_id"`
		PendingRequests int    `json:"pending_requests"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/state", &res))
	require.Equal(t, "active", res.State)
	require.EqualValues(t, 1, res.NextEventID)
	require.Zero(t, res.PendingRequests)

	h.controller.Pause()
	require.NoError(t, h.controller.SubmitProofRequest(h.controller.NextEventProofID(), entity.NewXrplTxRequest([]byte{0x01})))

	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/state", &res))
	require.Equal(t, "paused", res.State)
	require.EqualValues(t, 2, res.NextEventID)
	require.Equal(t, 1, res.PendingRequests)
}

func TestGetValidators(t *testing.T) {
	t.Parallel()

	keys := compressedTestKeys(t, 5)
	h := newPresenterHarness(t, keys, 4)
	require.NoError(t, h.coordinator.SetXrplDoorSigners(keys[:3]))
	require.NoError(t, h.coordinator.ScheduleNextKeys(compressedTestKeys(t, 5)))

	var res struct {
		Ethereum struct {
			ID             uint64   `json:"id"`
			ProofThreshold uint32   `json:"proof_threshold"`
			Validators     []string `json:"validators"`
		} `json:"ethereum"`
		Xrpl struct {
			ProofThreshold uint32   `json:"proof_threshold"`
			Validators     []string `json:"validators"`
		} `json:"xrpl"`
		NextValidators   []string `json:"next_validators"`
		ChangeInProgress bool     `json:"change_in_progress"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/validators", &res))
	require.EqualValues(t, 4, res.Ethereum.ID)
	require.EqualValues(t, 4, res.Ethereum.ProofThreshold)
	require.Len(t, res.Ethereum.Validators, 5)
	require.EqualValues(t, 2, res.Xrpl.ProofThreshold)
	require.Len(t, res.Xrpl.Validators, 3)
	require.Len(t, res.NextValidators, 5)
	require.False(t, res.ChangeInProgress)
}

type fakeXrplLookup struct {
	txHash      string
	ledgerIndex uint64
}

func (f *fakeXrplLookup) TransactionEntry(_ context.Context, txHash string, ledgerIndex uint64) (json.RawMessage, error) {
	f.txHash = txHash
	f.ledgerIndex = ledgerIndex
	return json.RawMessage(`{"validated":true}`), nil
}

func TestGetXrplTransaction(t *testing.T) {
	t.Parallel()

	lookup := &fakeXrplLookup{}
	h := newPresenterHarness(t, compressedTestKeys(t, 3), 1, presenter.WithXrplTxLookup(lookup))

	txHash := "aa04f90b69bd0e37c794ede2eec5f2323a2934975d5face6c2fdbbf8dd24f048"
	var res struct {
		Validated bool `json:"validated"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/ethy/xrpl/tx/"+txHash+"?ledgerIndex=12", &res))
	require.True(t, res.Validated)
	require.Equal(t, txHash, lookup.txHash)
	require.EqualValues(t, 12, lookup.ledgerIndex)

	// route requires a full 32-byte hash
	require.Equal(t, http.StatusNotFound, h.getJSON(t, "/ethy/xrpl/tx/abcd", nil))

	bare := newPresenterHarness(t, compressedTestKeys(t, 3), 1)
	require.Equal(t, http.StatusNotFound, bare.getJSON(t, "/ethy/xrpl/tx/"+txHash, nil))
}

func TestGetEventProofBadEventID(t *testing.T) {
	t.Parallel()

	h := newPresenterHarness(t, compressedTestKeys(t, 3), 1)
	for _, path := range []string{"/ethy/proof/eth/abc", "/ethy/proof/xrpl/-1"} {
		t.Run(path, func(t *testing.T) {
			status := h.getJSON(t, path, nil)
			require.True(t, status == http.StatusNotFound || status == http.StatusBadRequest, fmt.Sprintf("unexpected status %d", status))
		})
	}
}
