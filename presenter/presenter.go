package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omni/ethy-witness/bridge"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
	"github.com/omni/ethy-witness/presenter/http/middleware"
	"github.com/omni/ethy-witness/presenter/http/render"
	"github.com/omni/ethy-witness/repository"
	"github.com/omni/ethy-witness/utils"
	"github.com/omni/ethy-witness/validatorset"
)

// XrplTxLookup resolves validated XRPL transactions by hash.
type XrplTxLookup interface {
	TransactionEntry(ctx context.Context, txHash string, ledgerIndex uint64) (json.RawMessage, error)
}

type Presenter struct {
	logger     logging.Logger
	repo       *repository.Repo
	bridge     *bridge.Controller
	validators *validatorset.Coordinator
	xrplLookup XrplTxLookup
	root       chi.Router
}

type Option func(*Presenter)

// WithXrplTxLookup enables the XRPL transaction inspection route.
func WithXrplTxLookup(lookup XrplTxLookup) Option {
	return func(p *Presenter) {
		p.xrplLookup = lookup
	}
}

func NewPresenter(logger logging.Logger, repo *repository.Repo, ctrl *bridge.Controller, validators *validatorset.Coordinator, opts ...Option) *Presenter {
	p := &Presenter{
		logger:     logger,
		repo:       repo,
		bridge:     ctrl,
		validators: validators,
		root:       chi.NewMux(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.root.Use(chimiddleware.Throttle(5))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)
	p.root.Route("/ethy", func(r chi.Router) {
		r.With(middleware.GetEventIDMiddleware).Get("/proof/eth/{eventID:[0-9]+}", p.GetEthEventProof)
		r.With(middleware.GetEventIDMiddleware).Get("/proof/xrpl/{eventID:[0-9]+}", p.GetXrplEventProof)
		r.Get("/state", p.GetBridgeState)
		r.Get("/validators", p.GetValidators)
		r.Get("/xrpl/tx/{txHash:[0-9a-fA-F]{64}}", p.GetXrplTransaction)
	})
	return p
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) GetEthEventProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := middleware.EventID(ctx)

	proof, err := p.repo.EventProofs.GetByEvent(ctx, entity.ChainIDEthereum, eventID)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't get ethereum event proof: %w", err))
		return
	}
	if proof == nil {
		render.JSON(w, r, http.StatusNotFound, fmt.Sprintf("no ethereum proof for event %d", eventID))
		return
	}

	res := &EthEventProofResponse{
		Version:        entity.EventProofVersion1,
		EventID:        proof.EventID,
		ValidatorSetID: proof.ValidatorSetID,
		Digest:         proof.Digest,
		Block:          proof.Block,
		Validators:     []common.Address{},
	}

	validators := p.proofValidators(proof, p.validators.EthValidatorSet())
	for _, key := range validators {
		addr, err := utils.EthereumAddress(key)
		if err != nil {
			render.Error(w, r, fmt.Errorf("can't derive validator address: %w", err))
			return
		}
		res.Validators = append(res.Validators, addr)
	}

	// Signatures are expanded to validator set positions, so the contract
	// can match each one against the returned addresses. Only proofs stored
	// by older versions lack the set snapshot and fall back to compact form.
	if len(validators) > 0 {
		res.Signatures = keysToHex(proof.ExpandedSignatures(len(validators)))
	} else {
		for _, sig := range proof.Signatures {
			res.Signatures = append(res.Signatures, sig.Signature)
		}
	}

	render.JSON(w, r, http.StatusOK, res)
}

// proofValidators returns the validator set a proof was completed under,
// preferring the snapshot stored with the proof.
func (p *Presenter) proofValidators(proof *entity.EventProof, current *entity.ValidatorSet) [][]byte {
	if len(proof.Validators) > 0 {
		return proof.Validators
	}
	if current != nil && current.ID == proof.ValidatorSetID {
		return current.Validators
	}
	return nil
}

func (p *Presenter) GetXrplEventProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := middleware.EventID(ctx)

	proof, err := p.repo.EventProofs.GetByEvent(ctx, entity.ChainIDXrpl, eventID)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't get xrpl event proof: %w", err))
		return
	}
	if proof == nil {
		render.JSON(w, r, http.StatusNotFound, fmt.Sprintf("no xrpl proof for event %d", eventID))
		return
	}

	signers := p.proofValidators(proof, p.validators.XrplValidatorSet())
	res := &XrplEventProofResponse{
		Version:        entity.EventProofVersion1,
		EventID:        proof.EventID,
		ValidatorSetID: proof.ValidatorSetID,
		Digest:         proof.Digest,
		Block:          proof.Block,
		Validators:     keysToHex(signers),
	}
	for _, sig := range proof.Signatures {
		entry := &XrplSignature{Signature: derSignature(sig.Signature)}
		if int(sig.AuthorityIndex) < len(signers) {
			entry.Signer = signers[sig.AuthorityIndex]
		}
		res.Signatures = append(res.Signatures, entry)
	}

	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetBridgeState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, &BridgeStateResponse{
		State:           p.bridge.State().String(),
		NextEventID:     p.bridge.PeekNextEventID(),
		PendingRequests: p.bridge.PendingCount(),
	})
}

func (p *Presenter) GetXrplTransaction(w http.ResponseWriter, r *http.Request) {
	if p.xrplLookup == nil {
		render.JSON(w, r, http.StatusNotFound, "xrpl transaction lookup is not configured")
		return
	}

	var ledgerIndex uint64
	if raw := r.URL.Query().Get("ledgerIndex"); raw != "" {
		var err error
		if ledgerIndex, err = strconv.ParseUint(raw, 10, 64); err != nil {
			render.JSON(w, r, http.StatusBadRequest, fmt.Sprintf("invalid ledger index %q", raw))
			return
		}
	}

	tx, err := p.xrplLookup.TransactionEntry(r.Context(), chi.URLParam(r, "txHash"), ledgerIndex)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't look up xrpl transaction: %w", err))
		return
	}
	render.JSON(w, r, http.StatusOK, tx)
}

func (p *Presenter) GetValidators(w http.ResponseWriter, r *http.Request) {
	ethSet := p.validators.EthValidatorSet()
	xrplSet := p.validators.XrplValidatorSet()

	res := &ValidatorsResponse{
		Ethereum: &ValidatorSetResult{
			ID:             ethSet.ID,
			ProofThreshold: ethSet.ProofThreshold,
			Validators:     keysToHex(ethSet.Validators),
		},
		Xrpl: &ValidatorSetResult{
			ID:             xrplSet.ID,
			ProofThreshold: xrplSet.ProofThreshold,
			Validators:     keysToHex(xrplSet.Validators),
		},
		ChangeInProgress: p.validators.ChangeInProgress(),
	}
	if next := p.validators.NextNotaryKeys(); len(next) > 0 {
		res.NextValidators = keysToHex(next)
	}

	render.JSON(w, r, http.StatusOK, res)
}
