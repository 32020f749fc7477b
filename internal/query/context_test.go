package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_MarkTerminal_OnlyFirstCallSucceeds(t *testing.T) {
	ctx := NewContext(newFakeChannel(), RequestMessage{RequestID: "r1"}, DefaultSettings(), nil)

	assert.True(t, ctx.markTerminal())
	assert.False(t, ctx.markTerminal())
	assert.False(t, ctx.markTerminal())
}
