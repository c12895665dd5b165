package services

import (
	"context"
	"sort"
	"strings"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// DefaultMemorySession groups memories added without an explicit
// session identifier.
const DefaultMemorySession = "default"

// DefaultRecallTopK bounds how many memories a run recalls when the
// caller does not pick its own limit.
const DefaultRecallTopK = 5

// MemoryService stores long-term memory per user, grouped by the
// session that produced it. Search is keyword-based: a stored message
// matches when its text contains at least one keyword of the query,
// and matches are ranked by how many distinct keywords they contain.
type MemoryService interface {
	Service

	// AddMemory stores messages for the user. sessionID may be empty,
	// in which case DefaultMemorySession is used.
	AddMemory(ctx context.Context, userID string, msgs []*types.Message, sessionID string) error

	// SearchMemory returns stored messages relevant to the query
	// messages, across all of the user's sessions, best matches first.
	// topK > 0 caps the result; topK <= 0 returns every match.
	SearchMemory(ctx context.Context, userID string, query []*types.Message, topK int) ([]*types.Message, error)

	// ListMemory pages through all of the user's stored messages.
	// pageNum is 1-based.
	ListMemory(ctx context.Context, userID string, pageNum, pageSize int) ([]*types.Message, error)

	// DeleteMemory removes the user's memory for one session, or all
	// sessions when sessionID is empty.
	DeleteMemory(ctx context.Context, userID, sessionID string) error
}

// memorySessionKey normalizes the session grouping key.
func memorySessionKey(sessionID string) string {
	if sessionID == "" {
		return DefaultMemorySession
	}
	return sessionID
}

// queryKeywords extracts distinct lowercase search terms from query
// messages, in first-seen order.
func queryKeywords(query []*types.Message) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, msg := range query {
		for _, w := range strings.Fields(strings.ToLower(msg.ContentText())) {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	return words
}

// keywordOverlap counts how many of the keywords the text contains.
func keywordOverlap(text string, keywords []string) int {
	lower := strings.ToLower(text)
	overlap := 0
	for _, w := range keywords {
		if strings.Contains(lower, w) {
			overlap++
		}
	}
	return overlap
}

// rankByOverlap orders msgs by descending keyword overlap, dropping
// messages with no overlap. Ties keep their stored order. topK > 0
// caps the result.
func rankByOverlap(msgs []*types.Message, keywords []string, topK int) []*types.Message {
	if len(keywords) == 0 {
		return nil
	}

	type scored struct {
		msg     *types.Message
		overlap int
	}
	ranked := make([]scored, 0, len(msgs))
	for _, msg := range msgs {
		if n := keywordOverlap(msg.ContentText(), keywords); n > 0 {
			ranked = append(ranked, scored{msg: msg, overlap: n})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].overlap > ranked[j].overlap
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]*types.Message, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.msg)
	}
	return out
}

// pageSlice applies 1-based pagination to msgs. pageSize <= 0 returns
// everything from the first requested page on.
func pageSlice(msgs []*types.Message, pageNum, pageSize int) []*types.Message {
	if pageNum <= 0 {
		pageNum = 1
	}
	if pageSize <= 0 {
		return msgs
	}
	start := (pageNum - 1) * pageSize
	if start >= len(msgs) {
		return []*types.Message{}
	}
	end := start + pageSize
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end]
}
