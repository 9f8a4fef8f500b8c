package notification

import (
	"sync"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/logging"
)

// ProofStream fans out completed event proofs to subscribers. Delivery is
// best-effort: a subscriber that doesn't drain its channel loses messages
// instead of blocking proof generation.
type ProofStream struct {
	logger logging.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan entity.VersionedEventProof
}

func NewProofStream(logger logging.Logger) *ProofStream {
	return &ProofStream{
		logger: logger,
		subs:   make(map[uint64]chan entity.VersionedEventProof),
	}
}

// Subscribe registers a new subscriber with the given channel buffer size.
// The returned cancel func unregisters it and closes the channel.
func (s *ProofStream) Subscribe(buffer int) (<-chan entity.VersionedEventProof, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan entity.VersionedEventProof, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *ProofStream) Notify(proof *entity.EventProof) {
	versioned := entity.VersionedEventProof{
		Version: entity.EventProofVersion1,
		Proof:   proof,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- versioned:
			NotificationsSentCounter.Inc()
		default:
			NotificationsDroppedCounter.Inc()
			s.logger.WithField("subscriber_id", id).
				WithField("event_id", proof.EventID).
				Warn("dropping proof notification for slow subscriber")
		}
	}
}

func (s *ProofStream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
