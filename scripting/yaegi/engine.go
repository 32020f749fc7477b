// Package yaegi implements query.Engine by interpreting a sandboxed Go
// expression with the yaegi interpreter, standing in for the real
// Gremlin/Groovy engine that sits behind this server's wire protocol
// (out of scope for this repo).
package yaegi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/c360/traversalproc/internal/query"
)

// defaultAllowedPackages is the stdlib import allow-list a script body may
// reference. Anything else is rejected before the interpreter ever runs.
var defaultAllowedPackages = map[string]bool{
	"fmt":           true,
	"strings":       true,
	"strconv":       true,
	"math":          true,
	"sort":          true,
	"time":          true,
	"errors":        true,
	"encoding/json": true,
	"regexp":        true,
}

// Engine evaluates scripts via an interp.Interpreter built fresh for every
// request (yaegi interpreters are not safe to reuse concurrently).
type Engine struct {
	allowed map[string]bool
	logger  *slog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithAllowedPackages replaces the default stdlib allow-list.
func WithAllowedPackages(pkgs ...string) Option {
	return func(e *Engine) {
		allowed := make(map[string]bool, len(pkgs))
		for _, p := range pkgs {
			allowed[p] = true
		}
		e.allowed = allowed
	}
}

// New builds a yaegi-backed Engine.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{allowed: defaultAllowedPackages, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scriptTemplate wraps a request's script body into a function the
// interpreter can look up and call with the request's bindings.
const scriptTemplate = `
package main

%s

func __eval(bindings map[string]interface{}) (interface{}, error) {
	return Eval(bindings)
}
`

// Eval implements query.Engine. The request's gremlin argument is treated
// as a Go source fragment defining a function
// "func Eval(bindings map[string]interface{}) (interface{}, error)";
// language is currently ignored (only one dialect is supported).
func (e *Engine) Eval(ctx context.Context, script, language string, bindings map[string]any) (<-chan query.EvalResult, error) {
	if err := e.validateImports(script); err != nil {
		return nil, fmt.Errorf("forbidden import in script: %w", err)
	}

	out := make(chan query.EvalResult, 1)

	go func() {
		i := interp.New(interp.Options{})
		if err := i.Use(stdlib.Symbols); err != nil {
			out <- query.EvalResult{Err: fmt.Errorf("yaegi: loading stdlib symbols: %w", err)}
			return
		}

		fullSource := fmt.Sprintf(scriptTemplate, script)
		if _, err := i.Eval(fullSource); err != nil {
			out <- query.EvalResult{Err: fmt.Errorf("yaegi: compiling script: %w", err)}
			return
		}

		v, err := i.Eval("main.__eval")
		if err != nil {
			out <- query.EvalResult{Err: fmt.Errorf("yaegi: resolving entry point: %w", err)}
			return
		}

		fn, ok := v.Interface().(func(map[string]interface{}) (interface{}, error))
		if !ok {
			out <- query.EvalResult{Err: fmt.Errorf("yaegi: Eval has the wrong signature")}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := fn(bindings)
		select {
		case <-ctx.Done():
			e.logger.Debug("yaegi evaluation finished after its request was already cancelled")
		case out <- query.EvalResult{Value: result, Err: err}:
		}
	}()

	return out, nil
}

func (e *Engine) validateImports(script string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := strings.Trim(trimmed, `"`); pkg != "" && !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("packages not in allow-list: %v", forbidden)
	}
	return nil
}
