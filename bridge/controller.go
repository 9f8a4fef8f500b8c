package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
)

// State of the bridge. New proof requests are queued while paused.
type State uint8

const (
	StateActive State = iota
	StatePaused
)

func (s State) String() string {
	if s == StatePaused {
		return "paused"
	}
	return "active"
}

// ProofRequest is a single entry of the signing request log. The witness
// worker consumes these and votes on the digest derived from Data.
type ProofRequest struct {
	ChainID entity.ChainID
	EventID uint64
	Data    []byte
	Block   common.Hash
}

// Events receives controller lifecycle notifications.
type Events interface {
	ProofDelayed(eventID uint64)
	EventSend(eventID uint64, chainID entity.ChainID)
	StateChanged(state State)
}

type NopEvents struct{}

func (NopEvents) ProofDelayed(uint64)              {}
func (NopEvents) EventSend(uint64, entity.ChainID) {}
func (NopEvents) StateChanged(State)               {}

const requestLogCap = 256

// ErrRequestLogFull is returned by ForceSubmitProofRequest when the signing
// request log has no room left.
var ErrRequestLogFull = errors.New("signing request log is full")

// Controller owns the global event proof id counter, the bridge state and
// the queue of requests delayed while the bridge is paused.
type Controller struct {
	logger    logging.Logger
	events    Events
	blockHash func() common.Hash

	maxPerDrain int

	mu          sync.Mutex
	state       State
	nextEventID uint64
	pending     map[uint64]entity.SigningRequest
	requests    chan *ProofRequest
}

type Option func(*Controller)

func WithEvents(events Events) Option {
	return func(c *Controller) {
		c.events = events
	}
}

// WithMaxPendingPerDrain caps how many delayed requests a single Resume or
// DrainPending call replays. Zero means no cap.
func WithMaxPendingPerDrain(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPerDrain = n
		}
	}
}

// WithRequestLogCap overrides the signing request log capacity.
func WithRequestLogCap(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.requests = make(chan *ProofRequest, n)
		}
	}
}

// WithBlockHashFunc overrides how requests are stamped with the block they
// were observed at.
func WithBlockHashFunc(fn func() common.Hash) Option {
	return func(c *Controller) {
		c.blockHash = fn
	}
}

func NewController(logger logging.Logger, opts ...Option) *Controller {
	c := &Controller{
		logger:      logger,
		events:      NopEvents{},
		blockHash:   func() common.Hash { return common.Hash{} },
		nextEventID: 1,
		pending:     make(map[uint64]entity.SigningRequest),
		requests:    make(chan *ProofRequest, requestLogCap),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Requests exposes the signing request log consumed by the witness worker.
func (c *Controller) Requests() <-chan *ProofRequest {
	return c.requests
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PeekNextEventID returns the id the next accepted request will be assigned.
func (c *Controller) PeekNextEventID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextEventID
}

// NextEventProofID consumes and returns the next event proof id. Used when
// the id has to be embedded into the payload before the request is submitted.
func (c *Controller) NextEventProofID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	eventID := c.nextEventID
	c.nextEventID++
	return eventID
}

func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RequestForProof assigns the next event proof id to the request and submits
// it. While the bridge is active the request is appended to the signing
// request log right away, while paused it is queued until Resume. Ids are
// consumed either way, the counter never goes backwards.
func (c *Controller) RequestForProof(req entity.SigningRequest) (uint64, error) {
	eventID := c.NextEventProofID()
	if err := c.SubmitProofRequest(eventID, req); err != nil {
		return 0, err
	}
	return eventID, nil
}

// SubmitProofRequest submits a request under a previously consumed event
// proof id, honoring the paused state.
func (c *Controller) SubmitProofRequest(eventID uint64, req entity.SigningRequest) error {
	data, err := req.Data()
	if err != nil {
		RequestsCounter.WithLabelValues(req.ChainID().String(), "rejected").Inc()
		return fmt.Errorf("can't prepare signing request: %w", err)
	}

	c.mu.Lock()
	if c.state == StatePaused {
		c.mu.Unlock()
		c.logger.WithField("event_id", eventID).Info("delaying proof request while bridge is paused")
		c.delay(eventID, req)
		return nil
	}
	c.mu.Unlock()

	sent := c.send(&ProofRequest{
		ChainID: req.ChainID(),
		EventID: eventID,
		Data:    data,
		Block:   c.blockHash(),
	})
	if !sent {
		c.logger.WithField("event_id", eventID).Warn("request log is full, delaying proof request")
		c.delay(eventID, req)
	}
	return nil
}

// delay queues a request for a later DrainPending replay.
func (c *Controller) delay(eventID uint64, req entity.SigningRequest) {
	c.mu.Lock()
	c.pending[eventID] = req
	pendingCount := len(c.pending)
	c.mu.Unlock()

	PendingGauge.Set(float64(pendingCount))
	RequestsCounter.WithLabelValues(req.ChainID().String(), "delayed").Inc()
	c.events.ProofDelayed(eventID)
}

// ForceSubmitProofRequest appends the request to the log regardless of the
// bridge state. Validator set rotation payloads are witnessed while the
// bridge is paused, so they take this path. Returns ErrRequestLogFull when
// the log has no room, rotation must not silently queue behind a stalled
// worker.
func (c *Controller) ForceSubmitProofRequest(eventID uint64, req entity.SigningRequest) error {
	data, err := req.Data()
	if err != nil {
		RequestsCounter.WithLabelValues(req.ChainID().String(), "rejected").Inc()
		return fmt.Errorf("can't prepare signing request: %w", err)
	}

	sent := c.send(&ProofRequest{
		ChainID: req.ChainID(),
		EventID: eventID,
		Data:    data,
		Block:   c.blockHash(),
	})
	if !sent {
		RequestsCounter.WithLabelValues(req.ChainID().String(), "rejected").Inc()
		return ErrRequestLogFull
	}
	return nil
}

func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == StatePaused {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	c.mu.Unlock()

	PausedGauge.Set(1)
	c.logger.Warn("bridge paused")
	c.events.StateChanged(StatePaused)
}

// Resume reactivates the bridge and starts replaying delayed requests in
// ascending event id order. When a batch cap is configured, requests beyond
// the first batch stay queued until the next DrainPending call.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	delayed := len(c.pending)
	c.mu.Unlock()

	PausedGauge.Set(0)
	c.logger.WithField("delayed_requests", delayed).Info("bridge resumed")
	c.events.StateChanged(StateActive)
	c.DrainPending()
}

// DrainPending replays the next batch of delayed requests while the bridge
// is active and returns the number of requests replayed.
func (c *Controller) DrainPending() int {
	c.mu.Lock()
	if c.state != StateActive || len(c.pending) == 0 {
		c.mu.Unlock()
		return 0
	}
	delayed := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		delayed = append(delayed, id)
	}
	sort.Slice(delayed, func(i, j int) bool { return delayed[i] < delayed[j] })
	if c.maxPerDrain > 0 && len(delayed) > c.maxPerDrain {
		delayed = delayed[:c.maxPerDrain]
	}
	queued := make([]entity.SigningRequest, len(delayed))
	for i, id := range delayed {
		queued[i] = c.pending[id]
		delete(c.pending, id)
	}
	remaining := len(c.pending)
	c.mu.Unlock()

	PendingGauge.Set(float64(remaining))

	sent := 0
	for i, id := range delayed {
		data, err := queued[i].Data()
		if err != nil {
			c.logger.WithError(err).WithField("event_id", id).Error("dropping undecodable delayed request")
			continue
		}
		ok := c.send(&ProofRequest{
			ChainID: queued[i].ChainID(),
			EventID: id,
			Data:    data,
			Block:   c.blockHash(),
		})
		if !ok {
			// the log filled up mid-drain, requeue the rest for the
			// next round
			c.mu.Lock()
			for j := i; j < len(delayed); j++ {
				c.pending[delayed[j]] = queued[j]
			}
			remaining = len(c.pending)
			c.mu.Unlock()
			PendingGauge.Set(float64(remaining))
			c.logger.WithField("requeued", len(delayed)-i).Warn("request log is full, pausing drain")
			break
		}
		sent++
	}
	return sent
}

// send appends to the signing request log without blocking, reporting
// whether the log had room.
func (c *Controller) send(req *ProofRequest) bool {
	select {
	case c.requests <- req:
	default:
		return false
	}
	RequestsCounter.WithLabelValues(req.ChainID.String(), "sent").Inc()
	c.events.EventSend(req.EventID, req.ChainID)
	return true
}
