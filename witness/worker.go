package witness

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/notification"
)

// ValidatorSetProvider exposes the current proof threshold views of the
// validator sets.
type ValidatorSetProvider interface {
	EthValidatorSet() *entity.ValidatorSet
	XrplValidatorSet() *entity.ValidatorSet
}

// WorkerParams wires a Worker. Keystore may be nil, the worker then acts as
// a passive observer that aggregates witnesses without voting. Broadcast,
// WitnessesRepo and Stream are optional.
type WorkerParams struct {
	Logger      logging.Logger
	Keystore    *Keystore
	Validators  ValidatorSetProvider
	Requests    <-chan *bridge.ProofRequest
	WitnessesIn <-chan *entity.Witness
	Broadcast   func(*entity.Witness)
	EventProofs entity.EventProofsRepo
	Witnesses   entity.WitnessesRepo
	Stream      *notification.ProofStream
}

// Worker consumes the signing request log and incoming witnesses, votes with
// the local key when it is part of the relevant validator set, and turns
// quorums into stored, published event proofs.
type Worker struct {
	logger      logging.Logger
	keystore    *Keystore
	validators  ValidatorSetProvider
	requests    <-chan *bridge.ProofRequest
	witnessesIn <-chan *entity.Witness
	broadcast   func(*entity.Witness)
	eventProofs entity.EventProofsRepo
	witnesses   entity.WitnessesRepo
	stream      *notification.ProofStream

	record *Record
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Validators == nil {
		return nil, errors.New("worker needs a validator set provider")
	}
	if params.EventProofs == nil {
		return nil, errors.New("worker needs an event proofs repo")
	}
	return &Worker{
		logger:      params.Logger,
		keystore:    params.Keystore,
		validators:  params.Validators,
		requests:    params.Requests,
		witnessesIn: params.WitnessesIn,
		broadcast:   params.Broadcast,
		eventProofs: params.EventProofs,
		witnesses:   params.Witnesses,
		stream:      params.Stream,
		record:      NewRecord(),
	}, nil
}

func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("witness worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("witness worker stopped")
			return
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			w.handleProofRequest(ctx, req)
		case witness, ok := <-w.witnessesIn:
			if !ok {
				return
			}
			w.handleWitness(ctx, witness)
		}
	}
}

func (w *Worker) refreshValidatorSets() (eth, xrpl *entity.ValidatorSet) {
	eth = w.validators.EthValidatorSet()
	xrpl = w.validators.XrplValidatorSet()
	w.record.SetValidatorSets(eth, xrpl)
	return eth, xrpl
}

func (w *Worker) handleProofRequest(ctx context.Context, req *bridge.ProofRequest) {
	logger := w.logger.WithField("event_id", req.EventID).WithField("chain", req.ChainID.String())
	ethSet, xrplSet := w.refreshValidatorSets()

	w.record.NoteEventMetadata(req.EventID, req.ChainID, req.Data, req.Block)
	for _, replayed := range w.record.ProcessUnverifiedWitnesses(req.EventID, w.logger) {
		WitnessesCounter.WithLabelValues("verified").Inc()
		w.persistWitness(ctx, replayed)
	}

	set := ethSet
	if req.ChainID == entity.ChainIDXrpl {
		set = xrplSet
	}

	if w.keystore != nil && set.Contains(w.keystore.PublicKey()) {
		w.vote(ctx, req, set, logger)
	} else {
		logger.Debug("observing event without voting")
	}

	w.tryMakeProof(ctx, req.EventID, req.ChainID, set)
}

// vote signs the event digest with the local key and records, persists and
// broadcasts the resulting witness. Any failure means abstaining, a missing
// vote never blocks the quorum of the other validators.
func (w *Worker) vote(ctx context.Context, req *bridge.ProofRequest, set *entity.ValidatorSet, logger logging.Logger) {
	digest, err := DataToDigest(req.ChainID, req.Data, w.keystore.PublicKey())
	if err != nil {
		logger.WithError(err).Error("can't compute event digest, abstaining")
		return
	}
	sig, err := w.keystore.SignPrehashed(digest)
	if err != nil {
		logger.WithError(err).Error("can't sign event digest, abstaining")
		return
	}
	witness := &entity.Witness{
		ChainID:        req.ChainID,
		EventID:        req.EventID,
		ValidatorSetID: set.ID,
		Digest:         digest,
		AuthorityID:    w.keystore.PublicKey(),
		Signature:      sig,
		Block:          req.Block,
	}
	if _, err = w.record.NoteEventWitness(witness); err != nil {
		logger.WithError(err).Warn("can't record own witness")
		return
	}
	SignedCounter.Inc()
	w.persistWitness(ctx, witness)
	if w.broadcast != nil {
		w.broadcast(witness)
	}
	logger.Debug("voted for event")
}

func (w *Worker) handleWitness(ctx context.Context, witness *entity.Witness) {
	logger := w.logger.WithField("event_id", witness.EventID).WithField("chain", witness.ChainID.String())
	w.refreshValidatorSets()

	status, err := w.record.NoteEventWitness(witness)
	if err != nil {
		WitnessesCounter.WithLabelValues("rejected").Inc()
		logger.WithError(err).Debug("rejected witness")
		return
	}
	if status == WitnessUnverified {
		WitnessesCounter.WithLabelValues("unverified").Inc()
		logger.Debug("parked witness until event metadata arrives")
		return
	}
	WitnessesCounter.WithLabelValues("verified").Inc()
	w.persistWitness(ctx, witness)

	set := w.validators.EthValidatorSet()
	if witness.ChainID == entity.ChainIDXrpl {
		set = w.validators.XrplValidatorSet()
	}
	w.tryMakeProof(ctx, witness.EventID, witness.ChainID, set)
}

func (w *Worker) persistWitness(ctx context.Context, witness *entity.Witness) {
	if w.witnesses == nil {
		return
	}
	if err := w.witnesses.Ensure(ctx, witness); err != nil {
		w.logger.WithError(err).WithField("event_id", witness.EventID).Error("can't persist witness")
	}
}

func (w *Worker) tryMakeProof(ctx context.Context, eventID uint64, chainID entity.ChainID, set *entity.ValidatorSet) {
	meta := w.record.Metadata(eventID)
	if meta == nil {
		return
	}
	if !w.record.HasConsensus(eventID, chainID) {
		return
	}

	digest, err := proofDigest(chainID, meta.DigestData)
	if err != nil {
		w.logger.WithError(err).WithField("event_id", eventID).Error("can't derive proof digest")
		return
	}
	proof := &entity.EventProof{
		ProofKey:       entity.MakeProofKey(chainID, eventID),
		ChainID:        chainID,
		EventID:        eventID,
		ValidatorSetID: set.ID,
		Digest:         digest,
		Block:          meta.Block,
		Signatures:     w.record.Signatures(eventID),
		Validators:     append(entity.ValidatorKeys{}, set.Validators...),
	}
	if err := w.eventProofs.Ensure(ctx, proof); err != nil {
		w.logger.WithError(err).WithField("event_id", eventID).Error("can't store event proof")
		return
	}
	w.record.MarkComplete(eventID)
	ProofsCounter.WithLabelValues(chainID.String()).Inc()
	w.logger.WithField("event_id", eventID).
		WithField("chain", chainID.String()).
		WithField("signatures", proof.SignatureCount()).
		Info("event proof completed")
	if w.stream != nil {
		w.stream.Notify(proof)
	}
}

func proofDigest(chainID entity.ChainID, digestData []byte) (common.Hash, error) {
	if chainID == entity.ChainIDXrpl {
		return XrplTxDigest(digestData), nil
	}
	return DataToDigest(chainID, digestData, nil)
}
