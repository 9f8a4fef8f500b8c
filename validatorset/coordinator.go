package validatorset

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/utils"
)

const compressedKeyLength = 33

var (
	ErrChangeInProgress   = errors.New("validator set change already in progress")
	ErrNoChangeInProgress = errors.New("no validator set change in progress")
	ErrEmptyNextKeys      = errors.New("next notary keys are empty")
	ErrKeyMismatch        = errors.New("keys don't match the staged next notary keys")
	ErrTooManySigners     = errors.New("too many xrpl door signers")
	ErrInvalidKey         = errors.New("invalid notary key")
)

var validatorSetChangeArgs abi.Arguments

func init() {
	addressArrayType, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	validatorSetChangeArgs = abi.Arguments{
		{Name: "validators", Type: addressArrayType},
		{Name: "validatorSetId", Type: uint256Type},
	}
}

// Events receives coordinator lifecycle notifications.
type Events interface {
	ValidatorSetChangeInProgress(info *entity.ValidatorSetChangeInfo)
	ValidatorSetFinalised(setID uint64)
	XrplDoorSignersSet(count int)
}

type NopEvents struct{}

func (NopEvents) ValidatorSetChangeInProgress(*entity.ValidatorSetChangeInfo) {}
func (NopEvents) ValidatorSetFinalised(uint64)                                {}
func (NopEvents) XrplDoorSignersSet(int)                                      {}

// Params bundle the static configuration of a Coordinator.
type Params struct {
	SourceAddress         common.Address
	DestinationAddress    common.Address
	ProofThresholdPercent uint32
	MaxXrplKeys           int
	MaxNewSigners         int
}

// Coordinator tracks the current and the staged notary key sets, drives set
// rotations through the bridge controller and maintains the XRPL door signer
// subset.
type Coordinator struct {
	logger  logging.Logger
	bridge  *bridge.Controller
	events  Events
	builder XrplPayloadBuilder
	params  Params

	mu               sync.Mutex
	notaryKeys       [][]byte
	nextNotaryKeys   [][]byte
	notaryXrplKeys   [][]byte
	notarySetID      uint64
	changeInProgress bool
	doorSigners      map[string]bool

	// proof ids assigned to the in-flight rotation payloads,
	// the xrpl id is zero when the signer list did not change
	notarySetProofID     uint64
	xrplNotarySetProofID uint64
}

type Option func(*Coordinator)

func WithEvents(events Events) Option {
	return func(c *Coordinator) {
		c.events = events
	}
}

func WithXrplPayloadBuilder(builder XrplPayloadBuilder) Option {
	return func(c *Coordinator) {
		c.builder = builder
	}
}

func NewCoordinator(logger logging.Logger, bridgeController *bridge.Controller, params Params, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:      logger,
		bridge:      bridgeController,
		events:      NopEvents{},
		builder:     NewSignerListPayloadBuilder(),
		params:      params,
		doorSigners: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bootstrap installs the initial notary key set. The door signer flags of
// previously registered signers apply immediately.
func (c *Coordinator) Bootstrap(keys [][]byte, setID uint64) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notaryKeys = copyKeys(keys)
	c.notarySetID = setID
	c.notaryXrplKeys = c.selectXrplKeys(c.notaryKeys)
	ValidatorCountGauge.Set(float64(len(c.notaryKeys)))
	return nil
}

// ScheduleNextKeys stages the key set the next rotation will switch to.
func (c *Coordinator) ScheduleNextKeys(keys [][]byte) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextNotaryKeys = copyKeys(keys)
	return nil
}

// StartValidatorSetChange pauses the bridge and requests proofs over the
// staged next key set: an Ethereum payload carrying the new validator
// addresses and, when the door signer list actually changed, an XRPL
// SignerListSet payload. The XRPL proof id stays zero when the signer list
// is unchanged.
func (c *Coordinator) StartValidatorSetChange() error {
	c.mu.Lock()
	if c.changeInProgress {
		c.mu.Unlock()
		return ErrChangeInProgress
	}
	if len(c.nextNotaryKeys) == 0 {
		c.mu.Unlock()
		return ErrEmptyNextKeys
	}
	nextKeys := copyKeys(c.nextNotaryKeys)
	currentSetID := c.notarySetID
	nextSetID := currentSetID + 1
	currentXrplKeys := copyKeys(c.notaryXrplKeys)
	nextXrplKeys := c.selectXrplKeys(nextKeys)
	c.changeInProgress = true
	c.mu.Unlock()

	c.bridge.Pause()

	ethProofID, err := c.requestEthChangeProof(nextKeys, currentSetID, nextSetID)
	if err != nil {
		c.mu.Lock()
		c.changeInProgress = false
		c.mu.Unlock()
		c.bridge.Resume()
		return err
	}

	xrplProofID := uint64(0)
	if !sameKeySets(currentXrplKeys, nextXrplKeys) {
		xrplProofID, err = c.requestXrplChangeProof(nextXrplKeys)
		if err != nil {
			c.mu.Lock()
			c.changeInProgress = false
			c.mu.Unlock()
			c.bridge.Resume()
			return err
		}
	} else {
		c.logger.WithField("set_id", nextSetID).Info("xrpl door signer list unchanged, skipping signer list proof")
	}

	c.mu.Lock()
	c.notarySetProofID = ethProofID
	c.xrplNotarySetProofID = xrplProofID
	c.mu.Unlock()

	RotationsCounter.WithLabelValues("started").Inc()
	c.logger.WithField("current_set_id", currentSetID).
		WithField("next_set_id", nextSetID).
		WithField("eth_proof_id", ethProofID).
		WithField("xrpl_proof_id", xrplProofID).
		Info("validator set change started")
	c.events.ValidatorSetChangeInProgress(&entity.ValidatorSetChangeInfo{
		CurrentSetID: currentSetID,
		NextSetID:    nextSetID,
		NextKeys:     nextKeys,
	})
	return nil
}

// FinaliseValidatorSetChange promotes the staged keys to the active set,
// bumps the set id and resumes the bridge. The supplied keys must equal the
// staged next notary keys byte for byte.
func (c *Coordinator) FinaliseValidatorSetChange(nextKeys [][]byte) error {
	c.mu.Lock()
	if !c.changeInProgress {
		c.mu.Unlock()
		return ErrNoChangeInProgress
	}
	if !equalKeyLists(nextKeys, c.nextNotaryKeys) {
		c.mu.Unlock()
		RotationsCounter.WithLabelValues("rejected").Inc()
		return ErrKeyMismatch
	}
	c.notaryKeys = c.nextNotaryKeys
	c.nextNotaryKeys = nil
	c.notarySetID++
	c.changeInProgress = false
	c.notaryXrplKeys = c.selectXrplKeys(c.notaryKeys)
	newSetID := c.notarySetID
	ValidatorCountGauge.Set(float64(len(c.notaryKeys)))
	c.mu.Unlock()

	c.bridge.Resume()

	RotationsCounter.WithLabelValues("finalised").Inc()
	c.logger.WithField("set_id", newSetID).Info("validator set change finalised")
	c.events.ValidatorSetFinalised(newSetID)
	return nil
}

// SetXrplDoorSigners replaces the full door signer registry with the given
// list and recomputes the active XRPL key subset. Signers absent from the
// list lose their flag.
func (c *Coordinator) SetXrplDoorSigners(signers [][]byte) error {
	if len(signers) > c.params.MaxNewSigners {
		return ErrTooManySigners
	}
	if err := validateKeys(signers); err != nil {
		return err
	}
	c.mu.Lock()
	c.doorSigners = make(map[string]bool, len(signers))
	for _, s := range signers {
		c.doorSigners[string(s)] = true
	}
	c.notaryXrplKeys = c.selectXrplKeys(c.notaryKeys)
	count := len(c.doorSigners)
	c.mu.Unlock()

	c.logger.WithField("door_signers", count).Info("xrpl door signers replaced")
	c.events.XrplDoorSignersSet(count)
	return nil
}

// NotaryKeys returns the active notary key set.
func (c *Coordinator) NotaryKeys() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyKeys(c.notaryKeys)
}

// NextNotaryKeys returns the staged key set of the upcoming rotation.
func (c *Coordinator) NextNotaryKeys() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyKeys(c.nextNotaryKeys)
}

// NotaryXrplKeys returns the door-flagged subset of the active set, in
// active set order, capped at MaxXrplKeys.
func (c *Coordinator) NotaryXrplKeys() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyKeys(c.notaryXrplKeys)
}

func (c *Coordinator) NotarySetID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notarySetID
}

func (c *Coordinator) ChangeInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changeInProgress
}

// ChangeProofIDs returns the proof ids assigned to the in-flight rotation,
// the second id is zero when no XRPL signer list proof was requested.
func (c *Coordinator) ChangeProofIDs() (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notarySetProofID, c.xrplNotarySetProofID
}

// EthValidatorSet builds the Ethereum proof threshold view of the active set.
func (c *Coordinator) EthValidatorSet() *entity.ValidatorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.notaryKeys)
	threshold := (uint32(n)*c.params.ProofThresholdPercent + 99) / 100
	return entity.NewValidatorSet(copyKeys(c.notaryKeys), c.notarySetID, threshold)
}

// XrplValidatorSet builds the XRPL proof threshold view: all door signer
// keys but one must sign.
func (c *Coordinator) XrplValidatorSet() *entity.ValidatorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	threshold := uint32(0)
	if n := len(c.notaryXrplKeys); n > 0 {
		threshold = uint32(n - 1)
	}
	return entity.NewValidatorSet(copyKeys(c.notaryXrplKeys), c.notarySetID, threshold)
}

func (c *Coordinator) requestEthChangeProof(nextKeys [][]byte, currentSetID, nextSetID uint64) (uint64, error) {
	addresses := make([]common.Address, 0, len(nextKeys))
	for _, key := range nextKeys {
		addr, err := utils.EthereumAddress(key)
		if err != nil {
			return 0, fmt.Errorf("can't derive validator address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	message, err := validatorSetChangeArgs.Pack(addresses, new(big.Int).SetUint64(nextSetID))
	if err != nil {
		return 0, fmt.Errorf("can't encode validator set change: %w", err)
	}

	eventID := c.bridge.NextEventProofID()
	err = c.bridge.ForceSubmitProofRequest(eventID, entity.NewEthereumEventRequest(&entity.EthereumEventInfo{
		Source:         c.params.SourceAddress,
		Destination:    c.params.DestinationAddress,
		Message:        message,
		ValidatorSetID: currentSetID,
		EventID:        eventID,
	}))
	if err != nil {
		return 0, err
	}
	return eventID, nil
}

func (c *Coordinator) requestXrplChangeProof(nextXrplKeys [][]byte) (uint64, error) {
	entries := make([]SignerEntry, 0, len(nextXrplKeys))
	for _, key := range nextXrplKeys {
		entries = append(entries, SignerEntry{
			Account: utils.XrplAccountID(key),
			Weight:  1,
		})
	}
	quorum := uint32(0)
	if len(entries) > 0 {
		quorum = uint32(len(entries) - 1)
	}
	payload, err := c.builder.SignerListSetPayload(quorum, entries)
	if err != nil {
		return 0, fmt.Errorf("can't build signer list payload: %w", err)
	}

	eventID := c.bridge.NextEventProofID()
	if err := c.bridge.ForceSubmitProofRequest(eventID, entity.NewXrplTxRequest(payload)); err != nil {
		return 0, err
	}
	return eventID, nil
}

// selectXrplKeys picks the first MaxXrplKeys door-flagged keys, preserving
// set order. Callers hold c.mu.
func (c *Coordinator) selectXrplKeys(keys [][]byte) [][]byte {
	selected := make([][]byte, 0, c.params.MaxXrplKeys)
	for _, key := range keys {
		if len(selected) == c.params.MaxXrplKeys {
			break
		}
		if c.doorSigners[string(key)] {
			selected = append(selected, key)
		}
	}
	return selected
}

func validateKeys(keys [][]byte) error {
	for _, key := range keys {
		if len(key) != compressedKeyLength {
			return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, compressedKeyLength, len(key))
		}
	}
	return nil
}

func copyKeys(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = append([]byte{}, k...)
	}
	return out
}

func equalKeyLists(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameKeySets compares two key lists ignoring order.
func sameKeySets(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	as := copyKeys(a)
	bs := copyKeys(b)
	sort.Slice(as, func(i, j int) bool { return bytes.Compare(as[i], as[j]) < 0 })
	sort.Slice(bs, func(i, j int) bool { return bytes.Compare(bs[i], bs[j]) < 0 })
	return equalKeyLists(as, bs)
}
