// Package session holds the per-session generation state: the last submitted
// form, the in-flight flag, the committed molecule list and the banner shown
// after a cycle. The store lives from session start until Reset; nothing is
// persisted.
package session

import (
	"sync"
	"time"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/pkg/errors"
)

// BannerKind distinguishes the two banner flavours.
type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is the transient acknowledgement of the last cycle.
type Banner struct {
	Kind    BannerKind `json:"kind"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`
	Cycle   uint64     `json:"cycle"`
	ShownAt time.Time  `json:"shown_at"`
}

// Source records which path produced the committed list.
type Source string

const (
	SourceRemote Source = "remote"
	SourceOracle Source = "oracle"
)

// State is an immutable snapshot of the store.
type State struct {
	Form      *molecule.GenerationRequest `json:"form,omitempty"`
	InFlight  bool                        `json:"in_flight"`
	Molecules []molecule.Molecule         `json:"molecules"`
	Banner    *Banner                     `json:"banner,omitempty"`
	Source    Source                      `json:"source,omitempty"`
	Cycle     uint64                      `json:"cycle"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Token identifies one generation cycle. Only the holder of the current
// token can end the cycle.
type Token struct {
	cycle uint64
}

// Cycle returns the cycle number the token was issued for.
func (t Token) Cycle() uint64 { return t.cycle }

// Reader is the read-only view handed to presentation code.
type Reader interface {
	Snapshot() State
	Molecule(id string) (molecule.Molecule, bool)
	Subscribe() (<-chan State, func())
}

// Store is the session result store. All methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	form      *molecule.GenerationRequest
	inFlight  bool
	molecules []molecule.Molecule
	byID      map[string]int
	banner    *Banner
	source    Source
	cycle     uint64
	updatedAt time.Time
	now       func() time.Time

	subs   map[int]chan State
	nextID int
}

// NewStore returns an empty store for a fresh session.
func NewStore() *Store {
	return &Store{
		byID: map[string]int{},
		subs: map[int]chan State{},
		now:  time.Now,
	}
}

// Begin starts a new cycle: the form is recorded, in-flight is set and any
// banner is cleared. Tokens issued earlier become stale.
func (s *Store) Begin(req molecule.GenerationRequest) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycle++
	form := cloneRequest(req)
	s.form = &form
	s.inFlight = true
	s.banner = nil
	s.touch()
	return Token{cycle: s.cycle}
}

// Commit replaces the molecule list, ends the cycle and shows a success
// banner. It reports false and changes nothing when tok is stale.
func (s *Store) Commit(tok Token, mols []molecule.Molecule, source Source, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.cycle != s.cycle || !s.inFlight {
		return false
	}
	s.molecules = make([]molecule.Molecule, len(mols))
	copy(s.molecules, mols)
	s.byID = make(map[string]int, len(mols))
	for i, m := range s.molecules {
		s.byID[m.ID] = i
	}
	s.source = source
	s.inFlight = false
	s.banner = &Banner{Kind: BannerSuccess, Message: message, Cycle: tok.cycle, ShownAt: s.now()}
	s.touch()
	return true
}

// Fail ends the cycle with an error banner. The committed list is untouched.
func (s *Store) Fail(tok Token, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.cycle != s.cycle || !s.inFlight {
		return false
	}
	s.inFlight = false
	s.banner = &Banner{
		Kind:    BannerError,
		Message: errors.Message(err),
		Code:    errors.GetCode(err).String(),
		Cycle:   tok.cycle,
		ShownAt: s.now(),
	}
	s.touch()
	return true
}

// Abandon ends the cycle without a banner, used on teardown.
func (s *Store) Abandon(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.cycle != s.cycle || !s.inFlight {
		return false
	}
	s.inFlight = false
	s.touch()
	return true
}

// ClearBanner removes the success banner of tok's cycle if it is still the
// one displayed.
func (s *Store) ClearBanner(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.banner == nil || s.banner.Cycle != tok.cycle || s.banner.Kind != BannerSuccess {
		return false
	}
	s.banner = nil
	s.touch()
	return true
}

// DismissBanner removes whatever banner is shown.
func (s *Store) DismissBanner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.banner == nil {
		return false
	}
	s.banner = nil
	s.touch()
	return true
}

// Reset returns the store to its session-start state and invalidates every
// outstanding token.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycle++
	s.form = nil
	s.inFlight = false
	s.molecules = nil
	s.byID = map[string]int{}
	s.banner = nil
	s.source = ""
	s.touch()
}

// LastForm returns the last submitted form.
func (s *Store) LastForm() (molecule.GenerationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.form == nil {
		return molecule.GenerationRequest{}, false
	}
	return cloneRequest(*s.form), true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Molecule looks up a committed molecule by id.
func (s *Store) Molecule(id string) (molecule.Molecule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return molecule.Molecule{}, false
	}
	return s.molecules[i], true
}

// Subscribe returns a channel that receives the latest state after every
// change, starting with the current one. Slow readers only ever see the most
// recent state. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) touch() {
	s.updatedAt = s.now()
	if len(s.subs) == 0 {
		return
	}
	st := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (s *Store) snapshotLocked() State {
	st := State{
		InFlight:  s.inFlight,
		Molecules: make([]molecule.Molecule, len(s.molecules)),
		Source:    s.source,
		Cycle:     s.cycle,
		UpdatedAt: s.updatedAt,
	}
	copy(st.Molecules, s.molecules)
	if s.form != nil {
		f := cloneRequest(*s.form)
		st.Form = &f
	}
	if s.banner != nil {
		b := *s.banner
		st.Banner = &b
	}
	return st
}

func cloneRequest(r molecule.GenerationRequest) molecule.GenerationRequest {
	if r.Constraints != nil {
		c := *r.Constraints
		r.Constraints = &c
	}
	return r
}
