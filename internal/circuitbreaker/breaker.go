package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls are rejected
	HalfOpen              // a single trial call is allowed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings configures a Breaker.
type Settings struct {
	MaxFailures  int
	ResetTimeout time.Duration
	// OnStateChange, when set, is called outside the lock after each transition.
	OnStateChange func(name string, from, to State)
}

// Breaker opens after MaxFailures consecutive errors and lets a single trial
// through once ResetTimeout has elapsed.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	probing     bool
	lastFailure time.Time
}

// New creates a closed Breaker.
func New(name string, s Settings) *Breaker {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 1
	}
	return &Breaker{name: name, settings: s, now: time.Now}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) < b.settings.ResetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.probing = true
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	from := b.state
	b.probing = false
	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if from == HalfOpen || b.failures >= b.settings.MaxFailures {
			b.state = Open
		}
	} else {
		b.failures = 0
		b.state = Closed
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set hands out one Breaker per key, created on first use.
type Set struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet creates a Set whose breakers share the given settings.
func NewSet(s Settings) *Set {
	return &Set{settings: s, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key.
func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = New(key, s.settings)
		s.breakers[key] = b
	}
	return b
}

// States snapshots the state of every breaker in the set.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.breakers))
	for k, b := range s.breakers {
		out[k] = b.State()
	}
	return out
}
