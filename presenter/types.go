package presenter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type EthEventProofResponse struct {
	Version        uint8            `json:"version"`
	EventID        uint64           `json:"event_id"`
	ValidatorSetID uint64           `json:"validator_set_id"`
	Digest         common.Hash      `json:"digest"`
	Block          common.Hash      `json:"block"`
	Signatures     []hexutil.Bytes  `json:"signatures"`
	Validators     []common.Address `json:"validators"`
	Tag            hexutil.Bytes    `json:"tag"`
}

type XrplSignature struct {
	Signer    hexutil.Bytes `json:"signer"`
	Signature hexutil.Bytes `json:"signature"`
}

type XrplEventProofResponse struct {
	Version        uint8            `json:"version"`
	EventID        uint64           `json:"event_id"`
	ValidatorSetID uint64           `json:"validator_set_id"`
	Digest         common.Hash      `json:"digest"`
	Block          common.Hash      `json:"block"`
	Signatures     []*XrplSignature `json:"signatures"`
	Validators     []hexutil.Bytes  `json:"validators"`
	Tag            hexutil.Bytes    `json:"tag"`
}

type BridgeStateResponse struct {
	State           string `json:"state"`
	NextEventID     uint64 `json:"next_event_id"`
	PendingRequests int    `json:"pending_requests"`
}

type ValidatorSetResult struct {
	ID             uint64          `json:"id"`
	ProofThreshold uint32          `json:"proof_threshold"`
	Validators     []hexutil.Bytes `json:"validators"`
}

type ValidatorsResponse struct {
	Ethereum         *ValidatorSetResult `json:"ethereum"`
	Xrpl             *ValidatorSetResult `json:"xrpl"`
	NextValidators   []hexutil.Bytes     `json:"next_validators,omitempty"`
	ChangeInProgress bool                `json:"change_in_progress"`
}
