package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ethereumEventArgs abi.Arguments

func init() {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	ethereumEventArgs = abi.Arguments{
		{Name: "source", Type: addressType},
		{Name: "destination", Type: addressType},
		{Name: "message", Type: bytesType},
		{Name: "validatorSetId", Type: uint256Type},
		{Name: "eventId", Type: uint256Type},
	}
}

// EthereumEventInfo describes an outgoing bridge event that validators attest to.
type EthereumEventInfo struct {
	Source         common.Address
	Destination    common.Address
	Message        []byte
	ValidatorSetID uint64
	EventID        uint64
}

// ABIEncode packs the event info the same way the receiving bridge contract
// unpacks it for proof verification.
func (e *EthereumEventInfo) ABIEncode() ([]byte, error) {
	packed, err := ethereumEventArgs.Pack(
		e.Source,
		e.Destination,
		e.Message,
		new(big.Int).SetUint64(e.ValidatorSetID),
		new(big.Int).SetUint64(e.EventID),
	)
	if err != nil {
		return nil, fmt.Errorf("can't abi-encode ethereum event: %w", err)
	}
	return packed, nil
}

// SigningRequest is a single chain-bound payload submitted for witnessing.
// Exactly one of the variants is set.
type SigningRequest struct {
	ethereum *EthereumEventInfo
	xrplTx   []byte
}

func NewEthereumEventRequest(info *EthereumEventInfo) SigningRequest {
	return SigningRequest{ethereum: info}
}

// NewXrplTxRequest wraps an already serialized XRPL transaction blob.
func NewXrplTxRequest(txBlob []byte) SigningRequest {
	return SigningRequest{xrplTx: txBlob}
}

func (r SigningRequest) ChainID() ChainID {
	if r.ethereum != nil {
		return ChainIDEthereum
	}
	return ChainIDXrpl
}

func (r SigningRequest) EthereumEvent() (*EthereumEventInfo, bool) {
	return r.ethereum, r.ethereum != nil
}

func (r SigningRequest) XrplTx() ([]byte, bool) {
	return r.xrplTx, r.ethereum == nil
}

// Data returns the chain-specific payload handed to the signing layer.
// Ethereum events are reduced to the keccak256 digest of their ABI encoding,
// XRPL transaction blobs pass through untouched. XRPL signers derive their
// own per-signer digest from the blob later.
func (r SigningRequest) Data() ([]byte, error) {
	if r.ethereum != nil {
		encoded, err := r.ethereum.ABIEncode()
		if err != nil {
			return nil, err
		}
		return crypto.Keccak256(encoded), nil
	}
	return r.xrplTx, nil
}
