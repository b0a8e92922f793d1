/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package consistency

import (
	"context"
	"log/slog"

	"github.com/suparena/entitymapper/internal/logging"
)

// Work is a unit of work run under a scoped consistency level. The level in
// effect is carried by ctx and read back with ReadLevel / WriteLevel.
type Work func(ctx context.Context) error

type levelKey int

const (
	readKey levelKey = iota
	writeKey
)

func (k levelKey) String() string {
	if k == writeKey {
		return "write"
	}
	return "read"
}

// ContextWithReadLevel returns a child of ctx carrying level as the read level.
func ContextWithReadLevel(ctx context.Context, level Level) context.Context {
	return context.WithValue(ctx, readKey, level)
}

// ContextWithWriteLevel returns a child of ctx carrying level as the write level.
func ContextWithWriteLevel(ctx context.Context, level Level) context.Context {
	return context.WithValue(ctx, writeKey, level)
}

// ReadLevel returns the read level scoped onto ctx, if any.
func ReadLevel(ctx context.Context) (Level, bool) {
	level, ok := ctx.Value(readKey).(Level)
	return level, ok && level.IsSet()
}

// WriteLevel returns the write level scoped onto ctx, if any.
func WriteLevel(ctx context.Context) (Level, bool) {
	level, ok := ctx.Value(writeKey).(Level)
	return level, ok && level.IsSet()
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithLogger sets the logger used for scope tracing.
func WithLogger(logger *slog.Logger) ScopeOption {
	return func(s *Scope) {
		s.logger = logging.OrDiscard(logger)
	}
}

// Scope runs units of work under a read or write level. An explicit level
// applies to that call only; calls without one run at the scope defaults,
// even when nested inside an overridden call.
//
// Levels are never stored on the Scope itself. Each call derives a child
// context, so the caller's context still carries its previous level once the
// call returns, whether the work succeeded, failed or panicked. Independent
// goroutines sharing a Scope cannot observe each other's overrides.
type Scope struct {
	read   Level
	write  Level
	logger *slog.Logger
}

// NewScope creates a scope with the given defaults. Unset defaults fall back to One.
func NewScope(read, write Level, opts ...ScopeOption) *Scope {
	if !read.IsSet() {
		read = One
	}
	if !write.IsSet() {
		write = One
	}
	s := &Scope{read: read, write: write, logger: logging.Discard()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ReadDefault returns the level used when no override is supplied for a read.
func (s *Scope) ReadDefault() Level {
	return s.read
}

// WriteDefault returns the level used when no override is supplied for a write.
func (s *Scope) WriteDefault() Level {
	return s.write
}

// ExecuteWithReadLevel runs work at level[0] when given and set, otherwise at
// the read default. Errors from work are returned unchanged.
func (s *Scope) ExecuteWithReadLevel(ctx context.Context, work Work, level ...Level) error {
	return s.execute(ctx, readKey, resolve(s.read, level), work)
}

// ExecuteWithWriteLevel is the write counterpart of ExecuteWithReadLevel.
func (s *Scope) ExecuteWithWriteLevel(ctx context.Context, work Work, level ...Level) error {
	return s.execute(ctx, writeKey, resolve(s.write, level), work)
}

func (s *Scope) execute(ctx context.Context, key levelKey, level Level, work Work) error {
	if work == nil {
		return nil
	}
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		previous, _ := ctx.Value(key).(Level)
		s.logger.LogAttrs(ctx, slog.LevelDebug, "consistency scope",
			slog.String("kind", key.String()),
			slog.String("level", level.String()),
			slog.String("previous", previous.String()),
		)
	}
	return work(context.WithValue(ctx, key, level))
}

func resolve(fallback Level, override []Level) Level {
	if len(override) > 0 && override[0].IsSet() {
		return override[0]
	}
	return fallback
}

// Read runs a value-returning unit of work under a read level.
func Read[T any](ctx context.Context, s *Scope, work func(ctx context.Context) (T, error), level ...Level) (T, error) {
	var result T
	err := s.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
		var err error
		result, err = work(ctx)
		return err
	}, level...)
	return result, err
}

// Write runs a value-returning unit of work under a write level.
func Write[T any](ctx context.Context, s *Scope, work func(ctx context.Context) (T, error), level ...Level) (T, error) {
	var result T
	err := s.ExecuteWithWriteLevel(ctx, func(ctx context.Context) error {
		var err error
		result, err = work(ctx)
		return err
	}, level...)
	return result, err
}
