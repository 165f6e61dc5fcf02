package comms

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrTicketReleased is returned when a session runs on a ticket already handed back
var ErrTicketReleased = errors.New("comms: session ticket already released")

// Scheduler hands out the transport to one session at a time
type Scheduler struct {
	slot chan struct{}
	seq  atomic.Uint64
}

// NewScheduler returns a scheduler with the transport free
func NewScheduler() *Scheduler {
	return &Scheduler{slot: make(chan struct{}, 1)}
}

// Acquire blocks until no other ticket is live. Giving up through ctx
// leaves the scheduler untouched.
func (s *Scheduler) Acquire(ctx context.Context) (*Ticket, error) {
	waited := time.Now()
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ticket := &Ticket{
		ID:        uuid.New(),
		Seq:       s.seq.Add(1),
		acquired:  time.Now(),
		scheduler: s,
	}
	log.Debug().Str("session", ticket.ID.String()).Uint64("seq", ticket.Seq).
		Dur("waited", time.Since(waited)).Msg("ticket acquired")
	return ticket, nil
}

// Ticket grants exclusive use of the transport until released
type Ticket struct {
	ID  uuid.UUID
	Seq uint64

	acquired  time.Time
	scheduler *Scheduler
	released  atomic.Bool
}

// Release hands the transport to the next waiter. Only the first call counts.
func (t *Ticket) Release() {
	if t == nil || t.released.Swap(true) {
		return
	}
	<-t.scheduler.slot
	log.Debug().Str("session", t.ID.String()).Dur("held", time.Since(t.acquired)).Msg("ticket released")
}

// Valid returns ErrTicketReleased once the ticket can no longer be used
func (t *Ticket) Valid() error {
	if t == nil || t.released.Load() {
		return ErrTicketReleased
	}
	return nil
}

// Logger returns a logger tagged with the session id
func (t *Ticket) Logger() zerolog.Logger {
	if t == nil {
		return log.Logger
	}
	return log.With().Str("session", t.ID.String()).Logger()
}
