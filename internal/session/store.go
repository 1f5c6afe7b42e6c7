// Package session binds conversations to the model that first answered them
// and threads later turns through that model only.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"medportal/internal/core"

	"github.com/google/uuid"
)

// Config configures a Store.
type Config struct {
	Provider        core.GenerationProvider
	AttemptTimeout  time.Duration
	IdleTTL         time.Duration
	JanitorInterval time.Duration
	Logger          core.Logger
	Metrics         core.MetricsCollector
}

// Store is an in-memory ChatSession registry keyed by session id.
type Store struct {
	provider       core.GenerationProvider
	attemptTimeout time.Duration
	idleTTL        time.Duration
	logger         core.Logger
	metrics        core.MetricsCollector

	mu       sync.RWMutex
	sessions map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

type entry struct {
	// turnMu is held for the whole provider call; TryLock failure means busy.
	turnMu sync.Mutex
	mu     sync.RWMutex
	data   core.ChatSession
}

// NewStore creates a Store and starts the idle janitor when IdleTTL > 0.
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NopMetrics{}
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = core.DefaultAttemptTimeout
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = core.SessionJanitorInterval
	}

	s := &Store{
		provider:       cfg.Provider,
		attemptTimeout: cfg.AttemptTimeout,
		idleTTL:        cfg.IdleTTL,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		sessions:       make(map[string]*entry),
		done:           make(chan struct{}),
		now:            time.Now,
	}

	if cfg.IdleTTL > 0 {
		s.wg.Add(1)
		go s.janitor(cfg.JanitorInterval)
	}
	return s
}

// CreateSession binds a new conversation to model with the given opening turns.
func (s *Store) CreateSession(owner, model, instruction string, turns []core.ConversationTurn) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("create session: owner is required")
	}
	if model == "" {
		return "", fmt.Errorf("create session: model is required")
	}

	now := s.now()
	id := uuid.NewString()
	e := &entry{data: core.ChatSession{
		ID:          id,
		Owner:       owner,
		Model:       model,
		Instruction: instruction,
		Turns:       append([]core.ConversationTurn(nil), turns...),
		CreatedAt:   now,
		LastActive:  now,
	}}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	s.logger.Debug("Session %s bound to %s", id, model)
	return id, nil
}

func (s *Store) lookup(owner, id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrSessionNotBound
	}
	// Owner is immutable, no lock needed.
	if e.data.Owner != owner {
		return nil, core.ErrSessionNotBound
	}
	return e, nil
}

// AppendTurn sends text to the session's bound model and, on success, appends
// the user and assistant turns together. On failure the transcript is untouched.
func (s *Store) AppendTurn(ctx context.Context, owner, id, text string) (*core.GenerationResult, error) {
	e, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &core.MissingContextError{Field: "message"}
	}
	if s.provider == nil {
		return nil, errors.New("session store has no generation provider")
	}

	if !e.turnMu.TryLock() {
		return nil, core.ErrSessionBusy
	}
	defer e.turnMu.Unlock()

	e.mu.RLock()
	model := e.data.Model
	req := core.GenerationRequest{
		Instruction: e.data.Instruction,
		History:     append([]core.ConversationTurn(nil), e.data.Turns...),
		Message:     text,
	}
	e.mu.RUnlock()

	start := s.now()
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	reply, genErr := s.provider.Generate(attemptCtx, model, req)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	if genErr == nil && strings.TrimSpace(reply) == "" {
		genErr = &core.ProviderError{Model: model, Reason: core.ReasonMalformedResponse, Err: errors.New("empty reply")}
	}

	attempt := core.GenerationAttempt{Model: model, Outcome: core.OutcomeSuccess, Duration: s.now().Sub(start)}
	if genErr != nil {
		attempt.Outcome = core.OutcomeFailure
		attempt.Err = genErr
		attempt.Reason = core.ReasonOf(genErr)
		if timedOut {
			attempt.Reason = core.ReasonTimeout
		}
	}
	s.metrics.RecordAttempt(attempt, core.SourceTurn)

	if genErr != nil {
		s.logger.Warn("Turn on session %s failed on %s (%s): %v", id, model, attempt.Reason, genErr)
		return nil, &core.TurnFailedError{SessionID: id, Model: model, Cause: genErr}
	}

	e.mu.Lock()
	e.data.Turns = append(e.data.Turns,
		core.ConversationTurn{Role: core.RoleUser, Text: text},
		core.ConversationTurn{Role: core.RoleAssistant, Text: reply},
	)
	e.data.LastActive = s.now()
	e.mu.Unlock()

	return &core.GenerationResult{
		SessionID: id,
		Model:     model,
		Text:      reply,
		Attempts:  []core.GenerationAttempt{attempt},
	}, nil
}

// Get returns a copy of the session.
func (s *Store) Get(owner, id string) (core.ChatSession, error) {
	e, err := s.lookup(owner, id)
	if err != nil {
		return core.ChatSession{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.data
	out.Turns = append([]core.ConversationTurn(nil), e.data.Turns...)
	return out, nil
}

// Discard destroys the session.
func (s *Store) Discard(owner, id string) error {
	if _, err := s.lookup(owner, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.reapIdle(); n > 0 {
				s.logger.Info("Reaped %d idle sessions", n)
			}
		case <-s.done:
			return
		}
	}
}

// reapIdle removes sessions idle longer than the TTL. Sessions with a turn
// in flight are skipped.
func (s *Store) reapIdle() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, e := range s.sessions {
		if !e.turnMu.TryLock() {
			continue
		}
		e.mu.RLock()
		idle := e.data.LastActive.Before(cutoff)
		e.mu.RUnlock()
		e.turnMu.Unlock()

		if idle {
			delete(s.sessions, id)
			reaped++
		}
	}
	return reaped
}

// Close stops the janitor.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
