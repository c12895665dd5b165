package services

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// TokenCounter estimates message sizes for context budgeting. When the
// tiktoken encoding is unavailable (offline environments) it falls back
// to a bytes/4 approximation, which overshoots slightly for CJK text
// but keeps truncation deterministic.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the given tiktoken encoding, e.g. "cl100k_base".
// Loading errors are not fatal; the approximate counter is returned.
func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of a text fragment.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	// Rough heuristic: one token per four bytes, at least one.
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessage returns the token count of one message, including a
// small per-message overhead for role and framing.
func (c *TokenCounter) CountMessage(msg *types.Message) int {
	if msg == nil {
		return 0
	}
	const perMessageOverhead = 4
	return perMessageOverhead + c.Count(msg.ContentText())
}

// CountMessages sums CountMessage over all messages.
func (c *TokenCounter) CountMessages(msgs []*types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.CountMessage(msg)
	}
	return total
}

// TruncateToBudget drops the oldest messages until the remainder fits
// the budget. A budget <= 0 disables truncation.
func (c *TokenCounter) TruncateToBudget(msgs []*types.Message, budget int) []*types.Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	total := 0
	// Walk backwards so the newest messages survive.
	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := c.CountMessage(msgs[i])
		if total+n > budget {
			break
		}
		total += n
		cut = i
	}
	return msgs[cut:]
}
