package repositories

import (
	"chat-relay/domain"
	"sync"
	"time"
)

const defaultClockIdle = 10 * time.Minute

// stamper serializes appends per conversation and hands out strictly
// increasing timestamps, so that timestamp order is append order.
// Clocks unused for idle are forgotten, the next append resumes from the store.
type stamper struct {
	mu        sync.Mutex
	now       func() time.Time
	idle      time.Duration
	lastSweep time.Time
	clocks    map[domain.ConversationID]*conversationClock
}

type conversationClock struct {
	mu     sync.Mutex
	loaded bool
	last   time.Time
	// guarded by stamper.mu
	users   int
	touched time.Time
}

func newStamper() *stamper {
	return &stamper{
		now:    time.Now,
		idle:   defaultClockIdle,
		clocks: make(map[domain.ConversationID]*conversationClock),
	}
}

func (s *stamper) acquire(id domain.ConversationID) *conversationClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
		s.lastSweep = now
	}
	c, ok := s.clocks[id]
	if !ok {
		c = &conversationClock{}
		s.clocks[id] = c
	}
	c.users++
	c.touched = now
	return c
}

func (s *stamper) release(c *conversationClock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.users--
	c.touched = s.now()
}

// sweep drops the clocks nobody holds or waits for since idle.
func (s *stamper) sweep(now time.Time) {
	for id, c := range s.clocks {
		if c.users == 0 && now.Sub(c.touched) >= s.idle {
			delete(s.clocks, id)
		}
	}
}

// do runs write with the next timestamp of the conversation.
// latest is only called when the conversation has no clock yet, to resume
// after the stored history. The clock only moves forward when write succeeds.
func (s *stamper) do(id domain.ConversationID,
	latest func() (time.Time, error),
	write func(at time.Time) error) (time.Time, error) {
	c := s.acquire(id)
	defer s.release(c)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		last, err := latest()
		if err != nil {
			return time.Time{}, err
		}
		c.last = last
		c.loaded = true
	}

	// Round(0) strips the monotonic reading, the value must survive a round trip to disk
	at := s.now().UTC().Round(0)
	if !at.After(c.last) {
		at = c.last.Add(time.Nanosecond)
	}
	if err := write(at); err != nil {
		return time.Time{}, err
	}
	c.last = at
	return at, nil
}
