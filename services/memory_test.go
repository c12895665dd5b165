package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

func memoryBackends(t *testing.T) map[string]MemoryService {
	t.Helper()

	mr := miniredis.RunT(t)
	redisMem := NewRedisMemory(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return map[string]MemoryService{
		"in_memory": NewInMemoryMemory(),
		"redis":     redisMem,
	}
}

func textMsgs(texts ...string) []*types.Message {
	out := make([]*types.Message, 0, len(texts))
	for _, s := range texts {
		out = append(out, types.NewTextMessage(types.RoleUser, s))
	}
	return out
}

func TestMemoryConformance(t *testing.T) {
	for name, mem := range memoryBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, mem.AddMemory(ctx, "alice",
				textMsgs("I like green tea", "my cat is named Mochi"), ""))
			require.NoError(t, mem.AddMemory(ctx, "alice",
				textMsgs("the project deadline is Friday"), "work"))

			// Keyword search across sessions
			hits, err := mem.SearchMemory(ctx, "alice", textMsgs("what do I like to drink? tea"), 0)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			found := false
			for _, h := range hits {
				if h.ContentText() == "I like green tea" {
					found = true
				}
			}
			assert.True(t, found)

			// No keywords, no hits
			hits, err = mem.SearchMemory(ctx, "alice", nil, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			// Other users see nothing
			hits, err = mem.SearchMemory(ctx, "bob", textMsgs("tea"), 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			// Paging
			all, err := mem.ListMemory(ctx, "alice", 1, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			page, err := mem.ListMemory(ctx, "alice", 2, 2)
			require.NoError(t, err)
			assert.Len(t, page, 1)

			empty, err := mem.ListMemory(ctx, "alice", 5, 2)
			require.NoError(t, err)
			assert.Empty(t, empty)

			// Delete one session
			require.NoError(t, mem.DeleteMemory(ctx, "alice", "work"))
			all, err = mem.ListMemory(ctx, "alice", 1, 0)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			// Delete everything
			require.NoError(t, mem.DeleteMemory(ctx, "alice", ""))
			all, err = mem.ListMemory(ctx, "alice", 1, 0)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestMemorySearchCaseInsensitive(t *testing.T) {
	for name, mem := range memoryBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, mem.AddMemory(ctx, "u", textMsgs("The Capital of France is Paris"), ""))

			hits, err := mem.SearchMemory(ctx, "u", textMsgs("PARIS"), 0)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestMemorySearchRankingAndTopK(t *testing.T) {
	for name, mem := range memoryBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, mem.AddMemory(ctx, "alice", textMsgs(
				"lemon cake recipe",
				"green tea with honey and lemon",
				"honey and lemon tea before bed",
				"nothing relevant here",
			), ""))

			// More distinct query keywords matched ranks higher, even
			// when a weaker match was stored first.
			hits, err := mem.SearchMemory(ctx, "alice", textMsgs("tea honey lemon"), 0)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, "green tea with honey and lemon", hits[0].ContentText())
			assert.Equal(t, "honey and lemon tea before bed", hits[1].ContentText())
			assert.Equal(t, "lemon cake recipe", hits[2].ContentText())

			// topK caps the result at the best matches.
			hits, err = mem.SearchMemory(ctx, "alice", textMsgs("tea honey lemon"), 2)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "green tea with honey and lemon", hits[0].ContentText())
			assert.Equal(t, "honey and lemon tea before bed", hits[1].ContentText())

			// Equal-overlap matches keep their stored order.
			hits, err = mem.SearchMemory(ctx, "alice", textMsgs("lemon"), 0)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, "lemon cake recipe", hits[0].ContentText())
			assert.Equal(t, "green tea with honey and lemon", hits[1].ContentText())
		})
	}
}

func TestRegexQuoteMeta(t *testing.T) {
	assert.Equal(t, `c\+\+`, regexQuoteMeta("c++"))
	assert.Equal(t, "plain", regexQuoteMeta("plain"))
	assert.Equal(t, `a\.b\*c`, regexQuoteMeta("a.b*c"))
}
