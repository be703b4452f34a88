// Package session keeps the fixed table of authenticated web sessions.
package session

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/rs/zerolog"
)

const (
	Capacity = 10
	IDLength = 32

	Timeout = 30 * time.Minute
	// RevivalGrace is the lifetime given to sessions restored after a restart.
	RevivalGrace = 24 * time.Hour
	// PersistThrottle bounds how often a refresh rewrites the sessions document.
	PersistThrottle = 5 * time.Minute
	SweepInterval   = time.Minute

	DocumentPath = "/sessions.json"
)

const idCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoCapacity         = errors.New("no session slots available")
)

type Session struct {
	ID     string
	Expiry time.Time
	Active bool
}

// Credentials is the account sessions are created for.
type Credentials struct {
	AuthEnabled bool
	Username    string
	Password    string
}

type Options struct {
	Docs        storage.DocumentStore
	Credentials func() Credentials
	Logger      *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Rand is the id source; seeded from the runtime when nil.
	Rand *rand.Rand
}

type Store struct {
	lock  sync.Mutex
	slots [Capacity]Session

	docs        storage.DocumentStore
	credentials func() Credentials
	l           *zerolog.Logger
	now         func() time.Time
	rnd         *rand.Rand

	lastPersist time.Time
}

func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Store{
		docs:        opts.Docs,
		credentials: opts.Credentials,
		l:           opts.Logger,
		now:         opts.Now,
		rnd:         opts.Rand,
	}
}

// Create checks the credentials and allocates the first free slot.
func (s *Store) Create(username, password string) (string, error) {
	creds := s.credentials()
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) == 1
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	slot := -1
	for i := range s.slots {
		if !s.slots[i].Active {
			slot = i
			break
		}
	}
	if slot == -1 {
		return "", ErrNoCapacity
	}

	id := s.newID()
	s.slots[slot] = Session{ID: id, Expiry: s.now().Add(Timeout), Active: true}
	s.l.Info().Int("slot", slot).Str("username", username).Msg("session created")

	s.persist()
	return id, nil
}

// newID draws ids until one is not held by an active session.
func (s *Store) newID() string {
	for {
		b := make([]byte, IDLength)
		for i := range b {
			b[i] = idCharset[s.rnd.IntN(len(idCharset))]
		}
		id := string(b)
		if s.find(id) == -1 {
			return id
		}
	}
}

func (s *Store) find(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.slots {
		if s.slots[i].Active && s.slots[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate reports whether id names a live session and extends it. With
// authentication disabled every id is accepted.
func (s *Store) Validate(id string) bool {
	if !s.credentials().AuthEnabled {
		return true
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.find(id)
	if i == -1 {
		return false
	}

	now := s.now()
	if !now.Before(s.slots[i].Expiry) {
		s.slots[i].Active = false
		s.l.Debug().Int("slot", i).Msg("session expired")
		s.persist()
		return false
	}

	s.slots[i].Expiry = now.Add(Timeout)
	if now.Sub(s.lastPersist) > PersistThrottle {
		s.persist()
	}
	return true
}

// Invalidate ends the session and reports whether it existed.
func (s *Store) Invalidate(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.find(id)
	if i == -1 {
		return false
	}
	s.slots[i].Active = false
	s.l.Info().Int("slot", i).Msg("session invalidated")
	s.persist()
	return true
}

// SweepExpired deactivates expired sessions. The table is not persisted
// here; the next create, validate or invalidate writes it.
func (s *Store) SweepExpired() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	swept := 0
	for i := range s.slots {
		if s.slots[i].Active && !now.Before(s.slots[i].Expiry) {
			s.slots[i].Active = false
			swept++
		}
	}
	if swept > 0 {
		s.l.Debug().Int("count", swept).Msg("swept expired sessions")
	}
	return swept
}

func (s *Store) ActiveCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := 0
	for _, slot := range s.slots {
		if slot.Active {
			n++
		}
	}
	return n
}

// Sessions returns a copy of the table.
func (s *Store) Sessions() []Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Session(nil), s.slots[:]...)
}

type persistedSession struct {
	ID     string `json:"id"`
	Expiry int64  `json:"expiry"`
	Active bool   `json:"active"`
}

type sessionsDocument struct {
	Sessions []persistedSession `json:"sessions"`
}

// persist writes the active sessions. Failures are logged only.
func (s *Store) persist() {
	s.lastPersist = s.now()
	if s.docs == nil {
		return
	}

	doc := sessionsDocument{Sessions: []persistedSession{}}
	for _, slot := range s.slots {
		if slot.Active {
			doc.Sessions = append(doc.Sessions, persistedSession{
				ID:     slot.ID,
				Expiry: slot.Expiry.UnixMilli(),
				Active: true,
			})
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.l.Error().Err(err).Msg("failed to encode sessions")
		return
	}
	if err := s.docs.Write(DocumentPath, data); err != nil {
		s.l.Warn().Err(err).Msg("failed to save sessions")
		return
	}
	s.l.Trace().Int("count", len(doc.Sessions)).Msg("sessions saved")
}

// Load restores persisted sessions. Restored sessions get a fresh
// RevivalGrace lifetime instead of their stored expiry so a reboot does not
// log everyone out. Missing or corrupt data leaves the table empty.
func (s *Store) Load() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i := range s.slots {
		s.slots[i] = Session{}
	}
	if s.docs == nil {
		return nil
	}

	data, err := s.docs.Read(DocumentPath)
	if errors.Is(err, storage.ErrNotFound) {
		s.l.Debug().Msg("sessions document doesn't exist")
		return nil
	}
	if err != nil {
		s.l.Warn().Err(err).Msg("failed to read sessions")
		return fmt.Errorf("failed to read sessions: %w", err)
	}

	var doc sessionsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.l.Warn().Err(err).Msg("failed to parse sessions, starting without any")
		return fmt.Errorf("failed to parse sessions: %w", err)
	}

	expiry := s.now().Add(RevivalGrace)
	n := 0
	for _, p := range doc.Sessions {
		if n >= Capacity {
			break
		}
		if len(p.ID) != IDLength || s.find(p.ID) != -1 {
			continue
		}
		s.slots[n] = Session{ID: p.ID, Expiry: expiry, Active: true}
		n++
	}

	s.l.Info().Int("count", n).Msg("sessions loaded")
	return nil
}
