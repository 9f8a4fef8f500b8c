package oracle

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/ethclient"
	"github.com/omni/ethy-witness/logging"
)

// returnDataLimit caps eth_call responses relayed through the oracle.
const returnDataLimit = 3 * 1024

const callQueueCap = 64

type CallID = uint64

// CheckedCallResult is the outcome of a checked eth_call. Err is set when
// the call could not be performed against a suitable block.
type CheckedCallResult struct {
	CallID         CallID
	ReturnData     []byte
	Block          uint64
	BlockTimestamp uint64
	Err            error
}

type checkedCallRequest struct {
	callID             CallID
	target             common.Address
	input              []byte
	timestamp          uint64
	blockHint          uint64
	maxBlockLookBehind uint64
}

// CallOracle performs state reads against a remote chain at a block close
// to a requested timestamp. Results are delivered asynchronously.
type CallOracle interface {
	CheckedEthCall(target common.Address, input []byte, timestamp, blockHint, maxBlockLookBehind uint64) CallID
	Results() <-chan *CheckedCallResult
}

// NoopOracle accepts calls but never resolves them. Used when no Ethereum
// RPC endpoint is configured.
type NoopOracle struct {
	mu         sync.Mutex
	nextCallID CallID
}

func NewNoopOracle() *NoopOracle {
	return &NoopOracle{}
}

func (o *NoopOracle) CheckedEthCall(common.Address, []byte, uint64, uint64, uint64) CallID {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextCallID++
	return o.nextCallID
}

func (o *NoopOracle) Results() <-chan *CheckedCallResult {
	return nil
}

// EthCallOracle resolves checked calls over an Ethereum RPC client. Run
// must be started for calls to resolve.
type EthCallOracle struct {
	logger           logging.Logger
	client           ethclient.Client
	maxLookBehindCap uint64
	results          chan *CheckedCallResult

	mu         sync.Mutex
	nextCallID CallID
	queue      chan *checkedCallRequest
}

type EthCallOracleOption func(*EthCallOracle)

// WithMaxBlockLookBehind caps the per-request look-behind window. Requests
// asking for a larger window are clamped to the cap.
func WithMaxBlockLookBehind(blocks uint64) EthCallOracleOption {
	return func(o *EthCallOracle) {
		o.maxLookBehindCap = blocks
	}
}

func NewEthCallOracle(logger logging.Logger, client ethclient.Client, opts ...EthCallOracleOption) *EthCallOracle {
	o := &EthCallOracle{
		logger:  logger,
		client:  client,
		results: make(chan *CheckedCallResult, callQueueCap),
		queue:   make(chan *checkedCallRequest, callQueueCap),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *EthCallOracle) CheckedEthCall(target common.Address, input []byte, timestamp, blockHint, maxBlockLookBehind uint64) CallID {
	o.mu.Lock()
	o.nextCallID++
	callID := o.nextCallID
	o.mu.Unlock()

	req := &checkedCallRequest{
		callID:             callID,
		target:             target,
		input:              append([]byte{}, input...),
		timestamp:          timestamp,
		blockHint:          blockHint,
		maxBlockLookBehind: maxBlockLookBehind,
	}
	select {
	case o.queue <- req:
	default:
		CallsCounter.WithLabelValues("dropped").Inc()
		o.logger.WithField("call_id", callID).Warn("checked call queue is full, dropping request")
		o.deliver(&CheckedCallResult{CallID: callID, Err: ErrAdapterFailed})
	}
	return callID
}

func (o *EthCallOracle) Results() <-chan *CheckedCallResult {
	return o.results
}

func (o *EthCallOracle) Run(ctx context.Context) {
	o.logger.Info("eth call oracle started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("eth call oracle stopped")
			return
		case req := <-o.queue:
			o.deliver(o.resolve(ctx, req))
		}
	}
}

func (o *EthCallOracle) deliver(res *CheckedCallResult) {
	select {
	case o.results <- res:
	default:
		o.logger.WithField("call_id", res.CallID).Warn("dropping unread checked call result")
	}
}

// resolve walks back to the newest block not younger than the requested
// timestamp, within the look-behind window, and performs the call there.
// A block hint skips the walk straight to the suggested block.
func (o *EthCallOracle) resolve(ctx context.Context, req *checkedCallRequest) *CheckedCallResult {
	res := &CheckedCallResult{CallID: req.callID}

	latest, err := o.client.BlockNumber(ctx)
	if err != nil {
		CallsCounter.WithLabelValues("provider_error").Inc()
		res.Err = ErrAdapterFailed
		return res
	}

	window := req.maxBlockLookBehind
	if o.maxLookBehindCap > 0 && window > o.maxLookBehindCap {
		window = o.maxLookBehindCap
	}
	block := latest
	if req.blockHint != 0 && req.blockHint < latest {
		block = req.blockHint
	}
	for {
		header, err2 := o.client.HeaderByNumber(ctx, block)
		if err2 != nil {
			CallsCounter.WithLabelValues("provider_error").Inc()
			res.Err = ErrAdapterFailed
			return res
		}
		if header.Time <= req.timestamp {
			res.Block = block
			res.BlockTimestamp = header.Time
			break
		}
		if block == 0 || latest-block >= window {
			CallsCounter.WithLabelValues("invalid_timestamp").Inc()
			res.Err = ErrInvalidTimestamp
			return res
		}
		block--
	}

	returnData, err := o.client.CallContractAtBlock(ctx, ethereum.CallMsg{
		To:   &req.target,
		Data: req.input,
	}, res.Block)
	if err != nil {
		CallsCounter.WithLabelValues("provider_error").Inc()
		res.Err = ErrAdapterFailed
		return res
	}
	if len(returnData) > returnDataLimit {
		CallsCounter.WithLabelValues("oversized").Inc()
		res.Err = ErrReturnDataTooLarge
		return res
	}
	CallsCounter.WithLabelValues("ok").Inc()
	res.ReturnData = returnData
	return res
}
