// Package assistant answers free-form traffic questions with an LLM,
// grounding each prompt in keyword-matched knowledge base entries and a
// summary of the loaded violation dataset.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traffiq/backend/internal/llm"
	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/pkg/logger"
	"github.com/traffiq/backend/pkg/utils"
)

const SystemPrompt = `You are TraffiQ, an AI traffic expert and statistician for Qatar.
Your role is to:
1. Analyze traffic patterns and accident data
2. Provide policy recommendations based on data
3. Promote road safety and best practices
4. Guide policymakers with data-driven insights

Provide clear, accurate information based on available data.`

const FallbackMessage = "I apologize, but I'm having trouble connecting to the AI service. Please try again in a moment."

// minKeywordLen drops short words such as "is" or "of" that would otherwise
// match every entry.
const minKeywordLen = 3

var ErrEmptyQuestion = errors.New("question is empty")

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	Stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string) error) (string, error)
}

type Cache interface {
	GetReply(ctx context.Context, key string, reply any) (bool, error)
	SetReply(ctx context.Context, key string, reply any, ttl time.Duration) error
}

type Question struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history,omitempty"`
}

type Reply struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Context  []string `json:"context"`
	Cached   bool     `json:"cached"`
	Fallback bool     `json:"fallback"`
}

type cachedReply struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

type Option func(*Assistant)

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(a *Assistant) {
		a.cache = cache
		a.cacheTTL = ttl
	}
}

// WithDatasetContext appends the text returned by fn to every prompt.
func WithDatasetContext(fn func() string) Option {
	return func(a *Assistant) {
		a.datasetContext = fn
	}
}

type Assistant struct {
	completer      Completer
	knowledge      []string
	datasetContext func() string
	cache          Cache
	cacheTTL       time.Duration
}

func New(completer Completer, knowledge []string, opts ...Option) *Assistant {
	a := &Assistant{
		completer: completer,
		knowledge: append([]string(nil), knowledge...),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Retrieve returns the knowledge base entries that mention any keyword of
// the question, in knowledge base order.
func (a *Assistant) Retrieve(question string) []string {
	keywords := keywords(question)
	if len(keywords) == 0 {
		return nil
	}

	var matched []string
	for _, entry := range a.knowledge {
		lower := strings.ToLower(entry)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, entry)
				break
			}
		}
	}
	return matched
}

func keywords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minKeywordLen {
			out = append(out, f)
		}
	}
	return out
}

type prompt struct {
	request  llm.CompletionRequest
	context  []string
	cacheKey string
}

func (a *Assistant) prepare(q Question) (*prompt, error) {
	message := strings.TrimSpace(q.Message)
	if message == "" {
		return nil, ErrEmptyQuestion
	}

	matched := a.Retrieve(message)

	var b strings.Builder
	b.WriteString(strings.Join(matched, "\n"))
	if a.datasetContext != nil {
		if summary := a.datasetContext(); summary != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(summary)
		}
	}
	contextText := b.String()

	p := &prompt{
		request: llm.CompletionRequest{
			SystemPrompt: SystemPrompt,
			History:      q.History,
			UserPrompt:   fmt.Sprintf("Context from traffic database:\n%s\n\nUser Question: %s", contextText, message),
		},
		context: matched,
	}
	// Replies that depend on earlier turns are not reusable.
	if len(q.History) == 0 {
		p.cacheKey = utils.HashParts(contextText, strings.ToLower(message))
	}
	return p, nil
}

func newReply(question string, p *prompt) *Reply {
	return &Reply{
		ID:       uuid.New().String(),
		Question: question,
		Context:  p.context,
	}
}

func (a *Assistant) lookup(ctx context.Context, p *prompt) (string, bool) {
	if a.cache == nil || p.cacheKey == "" {
		return "", false
	}

	var cached cachedReply
	found, err := a.cache.GetReply(ctx, p.cacheKey, &cached)
	if err != nil {
		logger.Warn("Failed to read reply cache", zap.Error(err))
		return "", false
	}
	return cached.Answer, found
}

func (a *Assistant) store(ctx context.Context, p *prompt, answer string) {
	if a.cache == nil || p.cacheKey == "" {
		return
	}
	if err := a.cache.SetReply(ctx, p.cacheKey, cachedReply{Answer: answer, Context: p.context}, a.cacheTTL); err != nil {
		logger.Warn("Failed to cache reply", zap.Error(err))
	}
}

// Ask answers q. Upstream failures never surface as errors: the reply
// carries the fallback message instead.
func (a *Assistant) Ask(ctx context.Context, q Question) (*Reply, error) {
	p, err := a.prepare(q)
	if err != nil {
		return nil, err
	}
	reply := newReply(q.Message, p)

	if answer, ok := a.lookup(ctx, p); ok {
		reply.Answer = answer
		reply.Cached = true
		metrics.ChatTotal.WithLabelValues("cached").Inc()
		return reply, nil
	}

	resp, err := a.completer.Complete(ctx, p.request)
	if err != nil {
		logger.Error("Assistant completion failed", zap.String("reply_id", reply.ID), zap.Error(err))
		reply.Answer = FallbackMessage
		reply.Fallback = true
		metrics.ChatTotal.WithLabelValues("fallback").Inc()
		return reply, nil
	}

	reply.Answer = resp.Content
	a.store(ctx, p, resp.Content)
	metrics.ChatTotal.WithLabelValues("answered").Inc()

	logger.Info("Assistant replied",
		zap.String("reply_id", reply.ID),
		zap.Int("context_entries", len(p.context)),
		zap.Int("answer_length", len(resp.Content)),
	)
	return reply, nil
}

// AskStream is Ask with the answer delivered incrementally through onDelta.
// A cached answer or the fallback message arrives as a single delta.
func (a *Assistant) AskStream(ctx context.Context, q Question, onDelta func(string) error) (*Reply, error) {
	p, err := a.prepare(q)
	if err != nil {
		return nil, err
	}
	reply := newReply(q.Message, p)

	if answer, ok := a.lookup(ctx, p); ok {
		reply.Answer = answer
		reply.Cached = true
		metrics.ChatTotal.WithLabelValues("cached").Inc()
		return reply, onDelta(answer)
	}

	delivered := false
	answer, err := a.completer.Stream(ctx, p.request, func(delta string) error {
		delivered = true
		return onDelta(delta)
	})
	if err != nil {
		if delivered || ctx.Err() != nil {
			return nil, err
		}
		logger.Error("Assistant stream failed", zap.String("reply_id", reply.ID), zap.Error(err))
		reply.Answer = FallbackMessage
		reply.Fallback = true
		metrics.ChatTotal.WithLabelValues("fallback").Inc()
		return reply, onDelta(FallbackMessage)
	}

	reply.Answer = answer
	a.store(ctx, p, answer)
	metrics.ChatTotal.WithLabelValues("streamed").Inc()
	return reply, nil
}
