// internal/rules/engine.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Engine bundles a catalog with compile options for the service layer.
 *
 * Three entry points, differing in how failures are classified:
 *   - Compile: user-authored tree; ValidationErrors are expected results
 *   - CompilePersisted: tree loaded from storage that validated when saved;
 *     failing now means the catalog drifted, which is fatal (ErrCatalogDrift)
 *   - CompileText: tree produced by the natural-language translator; always
 *     re-validated, never trusted
 */

// Translator turns free text into a rule tree. Implementations are opaque
// collaborators; their output is untrusted input.
type Translator interface {
	Translate(ctx context.Context, text string) (types.Node, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, text string) (types.Node, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, text string) (types.Node, error) {
	return f(ctx, text)
}

// Engine compiles rule trees against one catalog.
type Engine struct {
	catalog *Catalog
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an engine. opts.Now is ignored; each compile uses the
// engine clock.
func NewEngine(catalog *Catalog, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog: catalog,
		opts:    opts,
		now:     time.Now,
		logger:  logger.With("component", "rules"),
	}
}

// WithClock replaces the engine clock, for relative-date tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Catalog returns the engine's field catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Compile validates and compiles a user-authored tree.
func (e *Engine) Compile(tree types.Node) (*Segment, error) {
	opts := e.opts
	opts.Now = e.now()
	return Compile(tree, e.catalog, opts)
}

// CompilePersisted compiles a stored tree. Validation failures wrap
// ErrCatalogDrift: a segment must never silently change audience because a
// field disappeared from the catalog.
func (e *Engine) CompilePersisted(tree types.Node) (*Segment, error) {
	seg, err := e.Compile(tree)
	if err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			e.logger.Error("persisted segment no longer validates",
				"error_count", len(verrs), "kinds", verrs.Kinds())
			return nil, fmt.Errorf("%w: %w", types.ErrCatalogDrift, err)
		}
		return nil, err
	}
	return seg, nil
}

// CompileText asks the translator for a tree and validates it like any
// user-authored tree. The tree is returned even when invalid so callers can
// show what was generated next to the errors.
func (e *Engine) CompileText(ctx context.Context, tr Translator, text string) (types.Node, *Segment, error) {
	tree, err := tr.Translate(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", types.ErrTranslatorUnavailable, err)
	}

	seg, err := e.Compile(tree)
	if err != nil {
		e.logger.Info("translated rule tree failed validation", "error", err)
		return tree, nil, err
	}
	return tree, seg, nil
}
