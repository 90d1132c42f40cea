// Package session owns one interpreter per language, created on first use.
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
	"github.com/randomizedcoder/go-interp-driver/internal/language"
)

// Config holds configuration for creating a Session.
type Config struct {
	Registry *language.Registry
	Logger   *slog.Logger

	// Template is copied for every interpreter; its Profile and Callbacks
	// are replaced.
	Template interpreter.Config

	// Callbacks returns the callbacks for one language (optional).
	Callbacks func(lang string) interpreter.Callbacks
}

// Session maps language names to interpreters.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	interps map[string]*interpreter.Interpreter
}

// New creates an empty Session.
func New(cfg Config) *Session {
	if cfg.Registry == nil {
		cfg.Registry = language.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		cfg:     cfg,
		logger:  cfg.Logger,
		interps: make(map[string]*interpreter.Interpreter),
	}
}

// Interpreter returns the interpreter for lang, creating it if needed.
// Aliases resolve to the same interpreter.
func (s *Session) Interpreter(lang string) (*interpreter.Interpreter, error) {
	profile, err := s.cfg.Registry.Lookup(lang)
	if err != nil {
		return nil, err
	}
	name := profile.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if interp, ok := s.interps[name]; ok {
		return interp, nil
	}

	cfg := s.cfg.Template
	cfg.Profile = profile
	cfg.Logger = s.logger
	cfg.Callbacks = interpreter.Callbacks{}
	if s.cfg.Callbacks != nil {
		cfg.Callbacks = s.cfg.Callbacks(name)
	}

	interp := interpreter.New(cfg)
	s.interps[name] = interp
	s.logger.Debug("interpreter_created", "language", name)
	return interp, nil
}

// Run executes code with the interpreter for lang. Only an unknown
// language is an error; everything else is reported in the events.
func (s *Session) Run(ctx context.Context, lang, code string) (iter.Seq[interpreter.Event], error) {
	interp, err := s.Interpreter(lang)
	if err != nil {
		return nil, err
	}
	return interp.RunContext(ctx, code), nil
}

// Resolve returns the canonical name for lang or an alias of it.
func (s *Session) Resolve(lang string) (string, error) {
	profile, err := s.cfg.Registry.Lookup(lang)
	if err != nil {
		return "", err
	}
	return profile.Name(), nil
}

// Languages returns every language the session can run.
func (s *Session) Languages() []string {
	return s.cfg.Registry.Names()
}

// Active returns the languages that have an interpreter, sorted.
func (s *Session) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.interps))
	for name := range s.interps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Terminate stops and forgets the interpreter for lang, if any.
func (s *Session) Terminate(lang string) error {
	profile, err := s.cfg.Registry.Lookup(lang)
	if err != nil {
		return err
	}

	s.mu.Lock()
	interp, ok := s.interps[profile.Name()]
	delete(s.interps, profile.Name())
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return interp.Terminate()
}

// Reset terminates every interpreter concurrently and clears the map.
func (s *Session) Reset() error {
	s.mu.Lock()
	interps := s.interps
	s.interps = make(map[string]*interpreter.Interpreter)
	s.mu.Unlock()

	p := pool.New().WithErrors()
	for name, interp := range interps {
		p.Go(func() error {
			if err := interp.Terminate(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	err := p.Wait()

	s.logger.Info("session_reset", "interpreters", len(interps), "error", err)
	return err
}

// Stats returns run and restart counts per active language.
func (s *Session) Stats() map[string]InterpreterStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]InterpreterStats, len(s.interps))
	for name, interp := range s.interps {
		out[name] = InterpreterStats{
			Runs:     interp.Runs(),
			Restarts: interp.Restarts(),
			State:    interp.State(),
		}
	}
	return out
}

// InterpreterStats is a snapshot of one interpreter.
type InterpreterStats struct {
	Runs     int64
	Restarts int
	State    interpreter.State
}
