package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/omni/ethy-witness/config"
	"github.com/omni/ethy-witness/logging"
)

const xrplRetryAttempts = 3

// XrplAdapter looks up transactions on the XRPL via the public websocket
// API. Every failure mode is collapsed into ErrAdapterFailed so callers
// only distinguish "configured wrong" from "remote failed".
type XrplAdapter struct {
	logger   logging.Logger
	endpoint string
	timeout  time.Duration
	dialer   *websocket.Dialer
	nextID   uint64
}

type xrplTxRequest struct {
	ID          uint64 `json:"id"`
	Command     string `json:"command"`
	Transaction string `json:"transaction"`
	LedgerIndex uint64 `json:"ledger_index,omitempty"`
}

type xrplTxResponse struct {
	ID     uint64          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewXrplAdapter(cfg *config.XrplConfig, logger logging.Logger) (*XrplAdapter, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, ErrOracleConfig
	}
	return &XrplAdapter{
		logger:   logger,
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
	}, nil
}

// TransactionEntry fetches the validated transaction with the given hash,
// optionally pinned to a ledger index.
func (a *XrplAdapter) TransactionEntry(ctx context.Context, txHash string, ledgerIndex uint64) (json.RawMessage, error) {
	req := &xrplTxRequest{
		ID:          atomic.AddUint64(&a.nextID, 1),
		Command:     "tx",
		Transaction: txHash,
		LedgerIndex: ledgerIndex,
	}

	var result json.RawMessage
	err := retry.Do(
		func() error {
			res, err := a.roundTrip(ctx, req)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(xrplRetryAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.WithError(err).WithField("attempt", n+1).Warn("retrying xrpl transaction lookup")
		}),
	)
	if err != nil {
		LookupsCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAdapterFailed, err)
	}
	LookupsCounter.WithLabelValues("ok").Inc()
	return result, nil
}

func (a *XrplAdapter) roundTrip(ctx context.Context, req *xrplTxRequest) (json.RawMessage, error) {
	// callers without a deadline still get bounded by the configured timeout
	if _, ok := ctx.Deadline(); !ok && a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	conn, _, err := a.dialer.DialContext(ctx, a.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("can't dial xrpl endpoint: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	if err = conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("can't send xrpl request: %w", err)
	}
	for {
		res := new(xrplTxResponse)
		if err = conn.ReadJSON(res); err != nil {
			return nil, fmt.Errorf("can't read xrpl response: %w", err)
		}
		// skip unsolicited stream messages
		if res.ID != req.ID {
			continue
		}
		if res.Status != "success" {
			return nil, fmt.Errorf("xrpl request failed: %s", res.Error)
		}
		return res.Result, nil
	}
}
