package graphmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/traversalproc/graph"
)

func TestManager_CommitFlushesStagedMutations(t *testing.T) {
	m := New(8)
	require.NoError(t, m.Register("g"))
	require.NoError(t, m.Stage(context.Background(), "g", Mutation{Key: "k1", Value: "v1"}))

	require.NoError(t, m.Commit(context.Background(), []string{"g"}))

	v, ok, err := m.State("g", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestManager_RollbackDiscardsStagedMutations(t *testing.T) {
	m := New(8)
	require.NoError(t, m.Register("g"))
	require.NoError(t, m.Stage(context.Background(), "g", Mutation{Key: "k1", Value: "v1"}))

	require.NoError(t, m.Rollback(context.Background(), []string{"g"}))

	_, ok, err := m.State("g", "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_CommitUnknownGraphReturnsAliasNotFound(t *testing.T) {
	m := New(8)
	err := m.Commit(context.Background(), []string{"missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrAliasNotFound)
}

func TestManager_CommitAllCoversEveryRegisteredGraph(t *testing.T) {
	m := New(8)
	require.NoError(t, m.Register("a"))
	require.NoError(t, m.Register("b"))
	require.NoError(t, m.Stage(context.Background(), "a", Mutation{Key: "k", Value: 1}))
	require.NoError(t, m.Stage(context.Background(), "b", Mutation{Key: "k", Value: 2}))

	require.NoError(t, m.CommitAll(context.Background()))

	va, _, _ := m.State("a", "k")
	vb, _, _ := m.State("b", "k")
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
}

func TestManager_RollbackAllClearsEveryGraph(t *testing.T) {
	m := New(8)
	require.NoError(t, m.Register("a"))
	require.NoError(t, m.Stage(context.Background(), "a", Mutation{Key: "k", Value: 1}))

	require.NoError(t, m.RollbackAll(context.Background()))

	_, ok, _ := m.State("a", "k")
	assert.False(t, ok)
}

func TestManager_RegisterIsIdempotent(t *testing.T) {
	m := New(8)
	require.NoError(t, m.Register("g"))
	require.NoError(t, m.Stage(context.Background(), "g", Mutation{Key: "k", Value: "v"}))
	require.NoError(t, m.Register("g"))

	require.NoError(t, m.Commit(context.Background(), []string{"g"}))
	v, ok, _ := m.State("g", "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestManager_StageUnknownGraphReturnsAliasNotFound(t *testing.T) {
	m := New(8)
	err := m.Stage(context.Background(), "missing", Mutation{Key: "k", Value: "v"})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrAliasNotFound)
}
