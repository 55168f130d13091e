package memory

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/nuka-cs/internal/metrics"
	"go.uber.org/zap"
)

// ErrEmptyUser is returned when an operation is called without a user ID.
var ErrEmptyUser = errors.New("memory: empty user id")

// userMemory holds everything the store knows about one user.
// All fields are guarded by mu.
type userMemory struct {
	mu        sync.Mutex
	turns     *turnRing
	facts     []Fact
	hashes    map[string]struct{}
	hasLedger bool
	sessions  map[string]*SessionContext
}

// Store is the in-process conversational memory. Writes for one user are
// serialized by that user's lock; different users never contend beyond
// the map lookup.
type Store struct {
	cfg    Config
	rules  Rules
	mu     sync.RWMutex
	users  map[string]*userMemory
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a memory store. Zero config values take defaults.
func NewStore(cfg Config, rules Rules, logger *zap.Logger) *Store {
	if len(rules.Categories) == 0 && len(rules.Topics) == 0 {
		rules = DefaultRules()
	}
	return &Store{
		cfg:    cfg.withDefaults(),
		rules:  rules,
		users:  make(map[string]*userMemory),
		now:    time.Now,
		logger: logger,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// user returns the record for userID, creating it when create is set.
func (s *Store) user(userID string, create bool) *userMemory {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if ok || !create {
		return u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u
	}
	u = &userMemory{
		turns:    newTurnRing(s.cfg.ShortMemoryMax),
		hashes:   make(map[string]struct{}),
		sessions: make(map[string]*SessionContext),
	}
	s.users[userID] = u
	metrics.MemoryUsers.Set(float64(len(s.users)))
	return u
}

// userIDs returns a snapshot of the tracked users.
func (s *Store) userIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids
}

// RecordTurn appends a turn to the user's short-term buffer and updates
// the matching session context.
func (s *Store) RecordTurn(userID string, turn Turn) error {
	if userID == "" {
		return ErrEmptyUser
	}
	if turn.SessionID == "" {
		turn.SessionID = DefaultSessionID
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}
	if turn.Speaker == "" {
		turn.Speaker = SpeakerUser
	}

	u := s.user(userID, true)
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.turns.push(turn) {
		s.logger.Debug("short-term memory evicted oldest turn",
			zap.String("user", userID),
			zap.Int("capacity", s.cfg.ShortMemoryMax))
	}
	s.updateSession(u, turn)
	return nil
}

// ExtractAndStore scans a user message for keyword rules and inserts the
// resulting facts into the long-term ledger. Returns the newly stored facts.
func (s *Store) ExtractAndStore(userID, message string, speaker Speaker) ([]Fact, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}
	if speaker != SpeakerUser {
		return nil, nil
	}
	candidates := s.extractFacts(message, s.now())
	if len(candidates) == 0 {
		return nil, nil
	}

	u := s.user(userID, true)
	u.mu.Lock()
	defer u.mu.Unlock()

	var stored []Fact
	for _, f := range candidates {
		if _, dup := u.hashes[f.ContentHash]; dup {
			s.logger.Debug("duplicate fact skipped",
				zap.String("user", userID),
				zap.String("category", f.Category),
				zap.String("keyword", f.Keyword))
			continue
		}
		u.facts = append(u.facts, f)
		u.hashes[f.ContentHash] = struct{}{}
		u.hasLedger = true
		stored = append(stored, f)
	}
	if over := len(u.facts) - s.cfg.LongMemoryMax; over > 0 {
		for _, old := range u.facts[:over] {
			delete(u.hashes, old.ContentHash)
		}
		u.facts = append([]Fact(nil), u.facts[over:]...)
	}

	if len(stored) > 0 {
		metrics.MemoryFactsStored.Add(float64(len(stored)))
		s.logger.Debug("stored facts",
			zap.String("user", userID),
			zap.Int("new", len(stored)),
			zap.Int("ledger", len(u.facts)))
	}
	return stored, nil
}

// Facts returns a copy of the user's long-term ledger, oldest first.
func (s *Store) Facts(userID string) []Fact {
	u := s.user(userID, false)
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Fact(nil), u.facts...)
}

// HasLedger reports whether the user currently owns a long-term ledger.
func (s *Store) HasLedger(userID string) bool {
	u := s.user(userID, false)
	if u == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hasLedger
}

// Turns returns up to n most recent turns for the user, oldest first.
// n <= 0 returns the whole buffer.
func (s *Store) Turns(userID string, n int) []Turn {
	u := s.user(userID, false)
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.turns.last(n)
}

// RecentQueries returns the text of the last n user turns, oldest first.
func (s *Store) RecentQueries(userID string, n int) []string {
	u := s.user(userID, false)
	if u == nil || n <= 0 {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	var out []string
	turns := u.turns.all()
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].Speaker == SpeakerUser && strings.TrimSpace(turns[i].Text) != "" {
			out = append(out, turns[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
