package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// approx counter (nil encoder) keeps these tests deterministic and
// offline.
func approxCounter() *TokenCounter { return &TokenCounter{} }

func TestTokenCounterApproximate(t *testing.T) {
	c := approxCounter()

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("hi"))
	assert.Equal(t, 3, c.Count("twelve chars"))
}

func TestCountMessages(t *testing.T) {
	c := approxCounter()

	msgs := []*types.Message{
		types.NewTextMessage(types.RoleUser, "hello world"),
		types.NewTextMessage(types.RoleAssistant, "hi"),
	}
	total := c.CountMessages(msgs)
	assert.Equal(t, c.CountMessage(msgs[0])+c.CountMessage(msgs[1]), total)
	assert.Greater(t, total, 0)

	assert.Equal(t, 0, c.CountMessage(nil))
}

func TestTruncateToBudget(t *testing.T) {
	c := approxCounter()

	msgs := []*types.Message{
		types.NewTextMessage(types.RoleUser, "oldest message with plenty of text"),
		types.NewTextMessage(types.RoleAssistant, "middle"),
		types.NewTextMessage(types.RoleUser, "newest"),
	}

	// Unlimited budget keeps everything
	assert.Len(t, c.TruncateToBudget(msgs, 0), 3)

	// Tight budget keeps only the newest
	newestCost := c.CountMessage(msgs[2])
	kept := c.TruncateToBudget(msgs, newestCost)
	assert.Len(t, kept, 1)
	assert.Equal(t, "newest", kept[0].ContentText())

	// Budget smaller than any message keeps nothing
	kept = c.TruncateToBudget(msgs, 1)
	assert.Empty(t, kept)
}
