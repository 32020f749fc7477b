// Package graphmgr implements query.GraphManager over a registry of named
// graphs, each holding a staged mutation buffer that Commit flushes into
// committed state and Rollback discards. It stands in for the real graph
// backend (TinkerGraph, JanusGraph, etc.) the distributed query processor
// would delegate to.
package graphmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/traversalproc/errors"
	"github.com/c360/traversalproc/graph"
	"github.com/c360/traversalproc/pkg/buffer"
	"github.com/c360/traversalproc/pkg/cache"
)

const component = "graphmgr"

// Mutation is one staged write against a named graph, keyed the way the
// backing cache stores committed state.
type Mutation struct {
	Key   string
	Value any
}

type namedGraph struct {
	mu      sync.Mutex
	pending buffer.Buffer[Mutation]
	state   cache.Cache[any]
}

// Manager is the default query.GraphManager: an in-process registry of
// named graphs. Graphs must be registered with Register before they can be
// targeted by Commit/Rollback; an unregistered name is reported through
// graph.ErrAliasNotFound exactly like the original alias-resolution error.
type Manager struct {
	mu     sync.RWMutex
	graphs map[string]*namedGraph

	stagingDepth int
}

// New builds an empty Manager. stagingDepth bounds how many staged
// mutations a single graph can accumulate before Commit before Stage starts
// reporting graph.ErrBufferFull.
func New(stagingDepth int) *Manager {
	if stagingDepth <= 0 {
		stagingDepth = 256
	}
	return &Manager{graphs: make(map[string]*namedGraph), stagingDepth: stagingDepth}
}

// Register adds a named graph to the registry if it doesn't already exist.
// Idempotent: registering an already-known name is a no-op.
func (m *Manager) Register(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.graphs[name]; ok {
		return nil
	}

	pending, err := buffer.NewCircularBuffer[Mutation](m.stagingDepth, buffer.WithOverflowPolicy[Mutation](buffer.DropNewest))
	if err != nil {
		return errors.WrapFatal(err, component, "Register", "allocate staging buffer")
	}
	state, err := cache.NewSimple[any]()
	if err != nil {
		return errors.WrapFatal(err, component, "Register", "allocate committed state")
	}

	m.graphs[name] = &namedGraph{pending: pending, state: state}
	return nil
}

// Stage queues a mutation against a named graph, to be applied on the next
// Commit covering that graph or discarded on Rollback. The staging buffer's
// DropNewest policy never fails a Write by itself, so fullness is checked
// explicitly to give callers a real backpressure signal.
func (m *Manager) Stage(ctx context.Context, graphName string, mut Mutation) error {
	g, err := m.lookup(graphName)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending.IsFull() {
		return errors.WrapTransient(fmt.Errorf("%w: graph %q", graph.ErrBufferFull, graphName), component, "Stage", "queue mutation")
	}
	if err := g.pending.Write(mut); err != nil {
		return errors.WrapTransient(err, component, "Stage", "queue mutation")
	}
	return nil
}

// Commit flushes every staged mutation on each named graph into its
// committed state. An unknown graph name aborts before any graph in the
// batch is touched, matching the original's fail-fast alias resolution.
func (m *Manager) Commit(ctx context.Context, graphNames []string) error {
	graphs, err := m.resolveAll(graphNames)
	if err != nil {
		return err
	}
	for _, g := range graphs {
		if err := flush(g); err != nil {
			return errors.WrapTransient(err, component, "Commit", "flush staged mutations")
		}
	}
	return nil
}

// Rollback discards every staged mutation on each named graph without
// applying it to committed state.
func (m *Manager) Rollback(ctx context.Context, graphNames []string) error {
	graphs, err := m.resolveAll(graphNames)
	if err != nil {
		return err
	}
	for _, g := range graphs {
		g.mu.Lock()
		g.pending.Clear()
		g.mu.Unlock()
	}
	return nil
}

// CommitAll flushes staged mutations on every registered graph.
func (m *Manager) CommitAll(ctx context.Context) error {
	return m.Commit(ctx, m.names())
}

// RollbackAll discards staged mutations on every registered graph.
func (m *Manager) RollbackAll(ctx context.Context) error {
	return m.Rollback(ctx, m.names())
}

// State returns the committed value for key on the named graph, for tests
// and introspection.
func (m *Manager) State(graphName, key string) (any, bool, error) {
	g, err := m.lookup(graphName)
	if err != nil {
		return nil, false, err
	}
	v, ok := g.state.Get(key)
	return v, ok, nil
}

func flush(g *namedGraph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		mut, ok := g.pending.Read()
		if !ok {
			return nil
		}
		if _, err := g.state.Set(mut.Key, mut.Value); err != nil {
			return err
		}
	}
}

func (m *Manager) lookup(name string) (*namedGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", graph.ErrAliasNotFound, name), component, "lookup", "resolve graph name")
	}
	return g, nil
}

func (m *Manager) resolveAll(names []string) ([]*namedGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*namedGraph, 0, len(names))
	for _, name := range names {
		g, ok := m.graphs[name]
		if !ok {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", graph.ErrAliasNotFound, name), component, "resolveAll", "resolve graph name")
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *Manager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.graphs))
	for name := range m.graphs {
		names = append(names, name)
	}
	return names
}
