package witness

import (
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
)

var (
	ErrCompletedEvent   = errors.New("event already completed")
	ErrDuplicateWitness = errors.New("duplicate witness")
	ErrUnknownAuthority = errors.New("witness from unknown authority")
	ErrMismatchedDigest = errors.New("witness digest mismatch")
	ErrInvalidSignature = errors.New("invalid witness signature")
)

type WitnessStatus uint8

const (
	// WitnessVerified means the witness was checked against the event
	// metadata and counted.
	WitnessVerified WitnessStatus = iota
	// WitnessUnverified means the event metadata is not known yet, the
	// witness is parked until it arrives.
	WitnessUnverified
)

// EventMetadata is the locally observed payload of an event, the trust
// anchor incoming witnesses are verified against.
type EventMetadata struct {
	ChainID    entity.ChainID
	DigestData []byte
	Block      common.Hash
}

// Record accumulates witnesses per event until quorum. It is not safe for
// concurrent use, the worker owns it exclusively.
type Record struct {
	validators     *entity.ValidatorSet
	xrplValidators *entity.ValidatorSet

	witnesses    map[uint64][]entity.AuthoritySignature
	hasWitnessed map[uint64]map[string]struct{}
	metadata     map[uint64]*EventMetadata
	unverified   map[uint64][]*entity.Witness
	// sorted unique ids of completed events, the leading entry acts as a
	// watermark: everything at or below it is completed
	completed []uint64
}

func NewRecord() *Record {
	return &Record{
		witnesses:    make(map[uint64][]entity.AuthoritySignature),
		hasWitnessed: make(map[uint64]map[string]struct{}),
		metadata:     make(map[uint64]*EventMetadata),
		unverified:   make(map[uint64][]*entity.Witness),
	}
}

// SetValidatorSets installs the sets used for authority lookups. XRPL events
// only count witnesses of door signers.
func (r *Record) SetValidatorSets(eth, xrpl *entity.ValidatorSet) {
	r.validators = eth
	r.xrplValidators = xrpl
}

func (r *Record) validatorSetFor(chainID entity.ChainID) *entity.ValidatorSet {
	if chainID == entity.ChainIDXrpl {
		return r.xrplValidators
	}
	return r.validators
}

// NoteEventMetadata stores the locally observed payload of an event. Only
// the first observation wins.
func (r *Record) NoteEventMetadata(eventID uint64, chainID entity.ChainID, digestData []byte, block common.Hash) {
	if _, ok := r.metadata[eventID]; ok {
		return
	}
	r.metadata[eventID] = &EventMetadata{
		ChainID:    chainID,
		DigestData: digestData,
		Block:      block,
	}
}

func (r *Record) Metadata(eventID uint64) *EventMetadata {
	return r.metadata[eventID]
}

// NoteEventWitness registers a witness vote. Witnesses arriving before the
// event metadata are parked and re-processed by ProcessUnverifiedWitnesses.
func (r *Record) NoteEventWitness(witness *entity.Witness) (WitnessStatus, error) {
	if r.isCompleted(witness.EventID) {
		return WitnessVerified, ErrCompletedEvent
	}
	if seen, ok := r.hasWitnessed[witness.EventID]; ok {
		if _, dup := seen[string(witness.AuthorityID)]; dup {
			return WitnessVerified, ErrDuplicateWitness
		}
	}

	meta, ok := r.metadata[witness.EventID]
	if !ok {
		r.unverified[witness.EventID] = append(r.unverified[witness.EventID], witness)
		return WitnessUnverified, nil
	}
	index, err := r.verifyWitness(witness, meta)
	if err != nil {
		return WitnessVerified, err
	}
	r.addVerified(witness, index)
	return WitnessVerified, nil
}

func (r *Record) verifyWitness(witness *entity.Witness, meta *EventMetadata) (uint32, error) {
	set := r.validatorSetFor(meta.ChainID)
	index, ok := set.AuthorityIndex(witness.AuthorityID)
	if !ok {
		return 0, ErrUnknownAuthority
	}
	expected, err := DataToDigest(meta.ChainID, meta.DigestData, witness.AuthorityID)
	if err != nil {
		return 0, err
	}
	if expected != witness.Digest {
		return 0, ErrMismatchedDigest
	}
	if !VerifyPrehashed(witness.AuthorityID, witness.Signature, witness.Digest) {
		return 0, ErrInvalidSignature
	}
	return index, nil
}

func (r *Record) addVerified(witness *entity.Witness, index uint32) {
	seen, ok := r.hasWitnessed[witness.EventID]
	if !ok {
		seen = make(map[string]struct{})
		r.hasWitnessed[witness.EventID] = seen
	}
	seen[string(witness.AuthorityID)] = struct{}{}

	sigs := r.witnesses[witness.EventID]
	pos := sort.Search(len(sigs), func(i int) bool { return sigs[i].AuthorityIndex >= index })
	sigs = append(sigs, entity.AuthoritySignature{})
	copy(sigs[pos+1:], sigs[pos:])
	sigs[pos] = entity.AuthoritySignature{AuthorityIndex: index, Signature: witness.Signature}
	r.witnesses[witness.EventID] = sigs
}

// ProcessUnverifiedWitnesses re-runs verification of witnesses parked before
// the event metadata arrived. Invalid ones are dropped, the ones that now
// verify are returned so the caller can persist them.
func (r *Record) ProcessUnverifiedWitnesses(eventID uint64, logger logging.Logger) []*entity.Witness {
	parked := r.unverified[eventID]
	if len(parked) == 0 {
		return nil
	}
	delete(r.unverified, eventID)
	meta := r.metadata[eventID]
	if meta == nil {
		return nil
	}
	verified := make([]*entity.Witness, 0, len(parked))
	for _, witness := range parked {
		if seen, ok := r.hasWitnessed[eventID]; ok {
			if _, dup := seen[string(witness.AuthorityID)]; dup {
				continue
			}
		}
		index, err := r.verifyWitness(witness, meta)
		if err != nil {
			logger.WithError(err).
				WithField("event_id", eventID).
				Debug("dropping parked witness")
			continue
		}
		r.addVerified(witness, index)
		verified = append(verified, witness)
	}
	return verified
}

// HasConsensus reports whether the event collected enough witnesses for its
// chain's proof threshold.
func (r *Record) HasConsensus(eventID uint64, chainID entity.ChainID) bool {
	set := r.validatorSetFor(chainID)
	if set.IsEmpty() {
		return false
	}
	return uint32(len(r.witnesses[eventID])) >= set.ProofThreshold
}

// Signatures returns the collected witness signatures ordered by ascending
// authority index.
func (r *Record) Signatures(eventID uint64) entity.AuthoritySignatures {
	return append(entity.AuthoritySignatures{}, r.witnesses[eventID]...)
}

// MarkComplete drops all tracking state of an event and remembers it as
// completed so stale witnesses are rejected.
func (r *Record) MarkComplete(eventID uint64) {
	delete(r.witnesses, eventID)
	delete(r.hasWitnessed, eventID)
	delete(r.metadata, eventID)
	delete(r.unverified, eventID)

	pos := sort.Search(len(r.completed), func(i int) bool { return r.completed[i] >= eventID })
	if pos < len(r.completed) && r.completed[pos] == eventID {
		return
	}
	r.completed = append(r.completed, 0)
	copy(r.completed[pos+1:], r.completed[pos:])
	r.completed[pos] = eventID

	// collapse the contiguous run at the head into a single watermark
	trim := 0
	for trim+1 < len(r.completed) && r.completed[trim+1] == r.completed[trim]+1 {
		trim++
	}
	r.completed = r.completed[trim:]
}

func (r *Record) isCompleted(eventID uint64) bool {
	if len(r.completed) == 0 {
		return false
	}
	if eventID <= r.completed[0] {
		return true
	}
	pos := sort.Search(len(r.completed), func(i int) bool { return r.completed[i] >= eventID })
	return pos < len(r.completed) && r.completed[pos] == eventID
}
