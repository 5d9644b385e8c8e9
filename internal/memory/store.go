// Package memory implements the semantic memory capability on top of
// chromem-go, an embeddable pure-Go vector database. Records and
// persisted sessions live in separate collections; retrieval is a
// similarity query scoped by a per-call timeout so a slow store can
// never stall the pipeline.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/session"
)

var tracer = otel.Tracer("github.com/halcyonlabs/admind/internal/memory")

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Config holds configuration for the chromem-backed memory store.
type Config struct {
	// Path is the directory for persistent storage. Empty means
	// in-memory only.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// RecordCollection is the collection for memory records.
	// Default: "admind_records"
	RecordCollection string

	// SessionCollection is the collection for persisted sessions.
	// Default: "admind_sessions"
	SessionCollection string

	// Dimension is the embedding vector size. Default: 256.
	Dimension int

	// Timeout bounds each store call. Default: 5s.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RecordCollection == "" {
		c.RecordCollection = "admind_records"
	}
	if c.SessionCollection == "" {
		c.SessionCollection = "admind_sessions"
	}
	if c.Dimension == 0 {
		c.Dimension = 256
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Store implements the memory capability.
type Store struct {
	db       *chromem.DB
	embedder Embedder
	config   Config
	logger   *zap.Logger
}

// NewStore creates a memory store. A nil embedder gets a deterministic
// hashing embedder sized to the configured dimension.
func NewStore(cfg Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	if embedder == nil {
		embedder = NewHashingEmbedder(cfg.Dimension)
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	logger.Info("memory store initialized",
		zap.String("path", cfg.Path),
		zap.Int("dimension", cfg.Dimension),
	)
	return &Store{db: db, embedder: embedder, config: cfg, logger: logger}, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return c, nil
}

// GetSuggestions returns up to max prior record contents similar to the
// query. Records from other sessions are included on purpose: cross-
// session recall is the point of the store.
func (s *Store) GetSuggestions(ctx context.Context, query, sessionID string, max int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "Store.GetSuggestions",
		trace.WithAttributes(attribute.Int("max", max)),
	)
	defer span.End()

	if max <= 0 {
		return nil, nil
	}

	col, err := s.collection(s.config.RecordCollection)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	k := max
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying records: %w", err)
	}

	suggestions := make([]string, 0, len(results))
	for _, r := range results {
		suggestions = append(suggestions, r.Content)
	}
	span.SetAttributes(attribute.Int("suggestions", len(suggestions)))
	return suggestions, nil
}

// StoreRecord writes a memory record and returns its generated ID.
func (s *Store) StoreRecord(ctx context.Context, content, category string, metadata map[string]string, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "Store.StoreRecord",
		trace.WithAttributes(attribute.String("category", category)),
	)
	defer span.End()

	if content == "" {
		return "", fmt.Errorf("record content is required")
	}

	col, err := s.collection(s.config.RecordCollection)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	id := uuid.NewString()
	meta := map[string]string{
		"category":   category,
		"session_id": sessionID,
		"created_at": timeNow().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	embedding, err := s.embedder.EmbedQuery(ctx, content)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("embedding record: %w", err)
	}

	err = col.AddDocuments(ctx, []chromem.Document{{
		ID:        id,
		Content:   content,
		Metadata:  meta,
		Embedding: embedding,
	}}, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("adding record: %w", err)
	}

	s.logger.Debug("memory record stored",
		zap.String("record_id", id),
		zap.String("category", category),
		zap.String("session_id", sessionID),
	)
	return id, nil
}

// PersistSession writes the session's audit trail and checkpoints as one
// batch: a summary document plus one document per checkpoint.
func (s *Store) PersistSession(ctx context.Context, sess *session.Session, checkpoints []session.Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "Store.PersistSession",
		trace.WithAttributes(
			attribute.String("session_id", sess.ID()),
			attribute.Int("checkpoints", len(checkpoints)),
		),
	)
	defer span.End()

	col, err := s.collection(s.config.SessionCollection)
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, 0, len(checkpoints)+1)

	summary, err := sessionSummary(sess)
	if err != nil {
		span.RecordError(err)
		return err
	}
	summaryEmbedding, err := s.embedder.EmbedQuery(ctx, summary)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding session summary: %w", err)
	}
	docs = append(docs, chromem.Document{
		ID:      sess.ID(),
		Content: summary,
		Metadata: map[string]string{
			"kind":       "session",
			"session_id": sess.ID(),
			"initiator":  sess.Initiator(),
		},
		Embedding: summaryEmbedding,
	})

	for _, cp := range checkpoints {
		payload, err := json.Marshal(cp)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("encoding checkpoint %d: %w", cp.StepIndex, err)
		}
		embedding, err := s.embedder.EmbedQuery(ctx, cp.Tool+" "+string(cp.Result.Status))
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("embedding checkpoint %d: %w", cp.StepIndex, err)
		}
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s_cp_%d", sess.ID(), cp.StepIndex),
			Content: string(payload),
			Metadata: map[string]string{
				"kind":       "checkpoint",
				"session_id": sess.ID(),
				"step_index": strconv.Itoa(cp.StepIndex),
				"tool":       cp.Tool,
			},
			Embedding: embedding,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("persisting session %s: %w", sess.ID(), err)
	}

	s.logger.Info("session persisted",
		zap.String("session_id", sess.ID()),
		zap.Int("checkpoints", len(checkpoints)),
	)
	return nil
}

// sessionSummary renders the audit trail and step results into one
// searchable text block.
func sessionSummary(sess *session.Session) (string, error) {
	type summary struct {
		Request string   `json:"request"`
		Events  []string `json:"events"`
		Steps   []string `json:"steps"`
	}

	out := summary{Request: sess.Request()}
	for _, ev := range sess.Events() {
		out.Events = append(out.Events, ev.Message)
	}
	for _, r := range sess.Results() {
		out.Steps = append(out.Steps, fmt.Sprintf("%s %s %s", r.StepName, r.Tool, r.Status))
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding session summary: %w", err)
	}
	return string(payload), nil
}
