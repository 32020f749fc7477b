package query

import (
	"context"
	"fmt"
	"sync"
)

// fakeChannel is an in-memory Channel double: it records every frame and
// control response written to it and can simulate backpressure by
// toggling writable.
type fakeChannel struct {
	mu        sync.Mutex
	writable  bool
	binary    bool
	frames    []Frame
	responses []ResponseMessage
	writeErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{writable: true}
}

func (c *fakeChannel) IsWritable() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.writable }
func (c *fakeChannel) UseBinary() bool  { return c.binary }

func (c *fakeChannel) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeChannel) WriteResponse(r ResponseMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.responses = append(c.responses, r)
	return nil
}

func (c *fakeChannel) setWritable(w bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable = w
}

func (c *fakeChannel) allFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeChannel) allResponses() []ResponseMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResponseMessage, len(c.responses))
	copy(out, c.responses)
	return out
}

// fakeSerializer round-trips an aggregate into a deterministic byte count
// so tests can assert on batch sizes without a real wire codec.
type fakeSerializer struct {
	failOn func(aggregate []any) bool
}

func (s *fakeSerializer) SerializeBinary(msg ResponseMessage) ([]byte, error) {
	return s.serialize(msg)
}

func (s *fakeSerializer) SerializeText(msg ResponseMessage) ([]byte, error) {
	return s.serialize(msg)
}

func (s *fakeSerializer) serialize(msg ResponseMessage) ([]byte, error) {
	if s.failOn != nil && s.failOn(msg.Result) {
		return nil, fmt.Errorf("simulated serialization failure")
	}
	return []byte(fmt.Sprintf("%d-items", len(msg.Result))), nil
}

// fakeGraphManager records every commit/rollback call it receives.
type fakeGraphManager struct {
	mu        sync.Mutex
	commits   [][]string
	rollbacks [][]string
	commitAll int
	rbAll     int
	failWith  error
}

func (g *fakeGraphManager) Commit(_ context.Context, names []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits = append(g.commits, names)
	return g.failWith
}

func (g *fakeGraphManager) Rollback(_ context.Context, names []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollbacks = append(g.rollbacks, names)
	return g.failWith
}

func (g *fakeGraphManager) CommitAll(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commitAll++
	return g.failWith
}

func (g *fakeGraphManager) RollbackAll(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rbAll++
	return g.failWith
}

// fakeEngine returns a pre-seeded EvalResult on a buffered channel.
type fakeEngine struct {
	result  EvalResult
	evalErr error
	delay   chan struct{}
}

func (e *fakeEngine) Eval(ctx context.Context, script, language string, bindings map[string]any) (<-chan EvalResult, error) {
	if e.evalErr != nil {
		return nil, e.evalErr
	}
	out := make(chan EvalResult, 1)
	if e.delay != nil {
		go func() {
			<-e.delay
			out <- e.result
		}()
	} else {
		out <- e.result
	}
	return out, nil
}
