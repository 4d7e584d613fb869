// Package chat answers questions over the indexed documents: cache
// probes first, then retrieval, prompt assembly and the LLM call, with
// per-session conversation memory.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"documind/cache"
	"documind/database"
	"documind/llmclient"
	"documind/prompts"
	"documind/vectorstore"
)

const (
	// DefaultSession is the stateless session: no history is read or
	// written for it.
	DefaultSession = "default"

	maxRAGResults    = 10
	embedCacheSize   = 256
	contextSeparator = "\n---\n"
)

// Request is one chat turn. UseHistory defaults to true when omitted.
type Request struct {
	Query      string `json:"message"`
	SessionID  string `json:"session_id"`
	SourceID   string `json:"source_id"`
	K          int    `json:"k"`
	UseHistory *bool  `json:"use_history"`
}

func (r *Request) useHistory() bool {
	return r.UseHistory == nil || *r.UseHistory
}

// Result is the answer plus retrieval provenance.
type Result struct {
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	SessionID     string   `json:"session_id"`
	ContextFound  bool     `json:"context_found"`
	LatencyMS     int64    `json:"latency_ms"`
	Error         bool     `json:"error,omitempty"`
	Cached        bool     `json:"_cached,omitempty"`
	SemanticMatch bool     `json:"semantic_match,omitempty"`
	Similarity    float64  `json:"similarity,omitempty"`
}

// Service is the query engine.
type Service struct {
	llm        *llmclient.Client
	cache      *cache.Cache
	vs         *vectorstore.Store
	db         *database.PostgresStore
	collection string
	maxTurns   int
	ragResults int
	embedCache *lru.Cache
	logger     *zap.Logger
}

func New(
	llm *llmclient.Client,
	c *cache.Cache,
	vs *vectorstore.Store,
	db *database.PostgresStore,
	collection string,
	maxTurns, ragResults int,
	logger *zap.Logger,
) *Service {
	embedCache, _ := lru.New(embedCacheSize)
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if ragResults <= 0 {
		ragResults = 4
	}
	return &Service{
		llm:        llm,
		cache:      c,
		vs:         vs,
		db:         db,
		collection: collection,
		maxTurns:   maxTurns,
		ragResults: ragResults,
		embedCache: embedCache,
		logger:     logger,
	}
}

func (s *Service) normalize(req *Request) {
	req.Query = strings.TrimSpace(req.Query)
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = DefaultSession
	}
	if req.K <= 0 {
		req.K = s.ragResults
	}
	if req.K > maxRAGResults {
		req.K = maxRAGResults
	}
}

// queryEmbedding embeds the query, memoizing recent queries so the cache
// probe and the final store do not pay for a second embedding call.
func (s *Service) queryEmbedding(ctx context.Context, query string) ([]float64, error) {
	key := cache.HashQuery(query)
	if v, ok := s.embedCache.Get(key); ok {
		return v.([]float64), nil
	}
	vec, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	emb := llmclient.ToFloat64(vec)
	s.embedCache.Add(key, emb)
	return emb, nil
}

type retrieval struct {
	contexts []string
	sources  []string
	history  []database.ChatMessage
}

// retrievalFilter scopes the context search to the caller's session,
// narrowed to one document when pinned. The stateless default session
// searches the whole index.
func retrievalFilter(req *Request) vectorstore.Filter {
	filter := vectorstore.Filter{}
	if req.SessionID != DefaultSession {
		filter["session_id"] = req.SessionID
	}
	if req.SourceID != "" {
		filter["source_id"] = req.SourceID
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// retrieve gathers document context and conversation history in
// parallel.
func (s *Service) retrieve(ctx context.Context, req *Request) (*retrieval, error) {
	out := &retrieval{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coll, err := s.vs.Collection(gctx, s.collection)
		if err != nil {
			return err
		}
		results, err := coll.Query(gctx, req.Query, req.K, retrievalFilter(req))
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, r := range results {
			out.contexts = append(out.contexts, r.Content)
			label := fmt.Sprintf("%s (ID: %s)", r.Metadata["source_id"], r.Metadata["doc_id"])
			if !seen[label] {
				seen[label] = true
				out.sources = append(out.sources, label)
			}
		}
		return nil
	})

	if req.SessionID != DefaultSession && req.useHistory() {
		g.Go(func() error {
			history, err := s.db.GetMessages(gctx, req.SessionID, 2*s.maxTurns)
			if err != nil {
				// History is best-effort; answering without it beats failing.
				s.logger.Warn("Could not load chat history",
					zap.String("session_id", req.SessionID), zap.Error(err))
				return nil
			}
			out.history = history
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildPrompt assembles the full model input: system instructions,
// optional history, retrieved context and the question.
func buildPrompt(query string, ret *retrieval) string {
	parts := []string{prompts.ChatSystem()}

	if len(ret.history) > 0 {
		var h strings.Builder
		for _, m := range ret.history {
			role := "User"
			if m.Role == "assistant" {
				role = "Assistant"
			}
			fmt.Fprintf(&h, "%s: %s\n", role, m.Content)
		}
		parts = append(parts, "\nCONVERSATION HISTORY:\n"+strings.TrimRight(h.String(), "\n"))
	}

	if len(ret.contexts) > 0 {
		parts = append(parts, "\nDOCUMENT CONTEXT:\n"+strings.Join(ret.contexts, contextSeparator))
	} else {
		parts = append(parts, "\nNOTE: No relevant context was found in the knowledgebase.")
	}

	parts = append(parts, "\nUSER QUESTION:\n"+query)
	parts = append(parts, "\nASSISTANT RESPONSE:")
	return strings.Join(parts, "\n")
}

// Chat answers one question, consulting the exact and semantic caches
// before doing retrieval and generation.
func (s *Service) Chat(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	s.normalize(&req)
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}

	if hit := s.cache.GetResponse(ctx, req.Query, req.SourceID); hit != nil {
		return cachedResult(hit, req.SessionID, start), nil
	}

	embedding, embErr := s.queryEmbedding(ctx, req.Query)
	if embErr != nil {
		s.logger.Warn("Query embedding failed, skipping semantic cache", zap.Error(embErr))
	} else if hit := s.cache.GetSimilar(ctx, embedding, req.SourceID); hit != nil {
		return cachedResult(hit, req.SessionID, start), nil
	}

	ret, err := s.retrieve(ctx, &req)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(req.Query, ret)
	answer, err := s.llm.Chat(ctx, []llmclient.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		s.logger.Error("Chat generation failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
		return failedResult(req, ret, start, err), nil
	}
	answer = strings.TrimSpace(answer)

	s.recordTurn(ctx, req, answer)
	s.cache.PutResponse(ctx, req.Query, req.SourceID, cache.CachedResponse{
		Response: answer,
		Sources:  ret.sources,
	}, embedding)

	return &Result{
		Answer:       answer,
		Sources:      ret.sources,
		SessionID:    req.SessionID,
		ContextFound: len(ret.contexts) > 0,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream answers one question as a token stream. History and cache
// writes happen after the stream completes, with the concatenated
// answer.
func (s *Service) ChatStream(ctx context.Context, req Request) (<-chan string, error) {
	s.normalize(&req)
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}

	if hit := s.cache.GetResponse(ctx, req.Query, req.SourceID); hit != nil {
		out := make(chan string, 1)
		out <- hit.Response
		close(out)
		return out, nil
	}

	embedding, embErr := s.queryEmbedding(ctx, req.Query)
	if embErr == nil {
		if hit := s.cache.GetSimilar(ctx, embedding, req.SourceID); hit != nil {
			out := make(chan string, 1)
			out <- hit.Response
			close(out)
			return out, nil
		}
	}

	ret, err := s.retrieve(ctx, &req)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(req.Query, ret)
	tokens, err := s.llm.ChatStream(ctx, []llmclient.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		var full strings.Builder
		for token := range tokens {
			full.WriteString(token)
			select {
			case out <- token:
			case <-ctx.Done():
				return
			}
		}
		answer := strings.TrimSpace(full.String())
		if answer == "" {
			return
		}
		// The request context may be gone once the client disconnects.
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.recordTurn(bg, req, answer)
		s.cache.PutResponse(bg, req.Query, req.SourceID, cache.CachedResponse{
			Response: answer,
			Sources:  ret.sources,
		}, embedding)
	}()
	return out, nil
}

// recordTurn persists the user/assistant exchange for stateful sessions.
func (s *Service) recordTurn(ctx context.Context, req Request, answer string) {
	if req.SessionID == DefaultSession {
		return
	}
	if err := s.db.AppendMessage(ctx, req.SessionID, "user", req.Query); err != nil {
		s.logger.Warn("Could not store user message", zap.Error(err))
		return
	}
	if err := s.db.AppendMessage(ctx, req.SessionID, "assistant", answer); err != nil {
		s.logger.Warn("Could not store assistant message", zap.Error(err))
	}
}

// failedResult keeps the response shape intact when generation fails:
// the error rides in the answer body instead of an HTTP failure, and
// the retrieval outcome is preserved.
func failedResult(req Request, ret *retrieval, start time.Time, err error) *Result {
	return &Result{
		Answer:       "Error: " + err.Error(),
		Error:        true,
		Sources:      ret.sources,
		SessionID:    req.SessionID,
		ContextFound: len(ret.contexts) > 0,
		LatencyMS:    time.Since(start).Milliseconds(),
	}
}

func cachedResult(hit *cache.CachedResponse, sessionID string, start time.Time) *Result {
	return &Result{
		Answer:        hit.Response,
		Sources:       hit.Sources,
		SessionID:     sessionID,
		ContextFound:  len(hit.Sources) > 0,
		LatencyMS:     time.Since(start).Milliseconds(),
		Cached:        true,
		SemanticMatch: hit.SemanticMatch,
		Similarity:    hit.Similarity,
	}
}

// History returns the stored conversation for a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]database.ChatMessage, error) {
	return s.db.GetMessages(ctx, sessionID, 0)
}

// ClearHistory removes a session's conversation.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) (bool, error) {
	return s.db.ClearChat(ctx, sessionID)
}

// ListSessions returns all stored conversations.
func (s *Service) ListSessions(ctx context.Context) ([]database.ChatSessionInfo, error) {
	return s.db.ListChatSessions(ctx)
}
