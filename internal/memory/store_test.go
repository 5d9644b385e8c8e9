package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestStoreRecordAndGetSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StoreRecord(ctx, "Reasoning result: resolved=true mailbox shared_finance granted FullAccess", "reasoning", nil, "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.StoreRecord(ctx, "maintenance check completed without findings", "maintenance", nil, "sess-2")
	require.NoError(t, err)

	suggestions, err := s.GetSuggestions(ctx, "grant FullAccess on shared_finance mailbox", "sess-3", 1)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Contains(t, suggestions[0], "shared_finance")
}

func TestGetSuggestionsEmptyStore(t *testing.T) {
	s := newTestStore(t)

	suggestions, err := s.GetSuggestions(context.Background(), "anything", "sess-1", 3)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestGetSuggestionsCapsAtCollectionSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreRecord(ctx, "only record", "general", nil, "sess-1")
	require.NoError(t, err)

	suggestions, err := s.GetSuggestions(ctx, "record", "sess-1", 10)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)
}

func TestStoreRecordRequiresContent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.StoreRecord(context.Background(), "", "general", nil, "sess-1")
	require.Error(t, err)
}

func TestPersistSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.New("admin@corp.example.com", "offboard jane.doe@corp.example.com")
	sess.AddEvent("plan created with %d steps", 3)
	sess.AppendResult(planning.StepResult{StepName: "remove_mailbox", Tool: "remove_mailbox", Status: planning.StatusCompleted})

	checkpoints := []session.Checkpoint{
		{StepIndex: 0, Tool: "remove_permissions", CreatedAt: time.Now(),
			Result: planning.StepResult{StepName: "remove_permissions", Status: planning.StatusCompleted}},
		{StepIndex: 1, Tool: "remove_mailbox", CreatedAt: time.Now(),
			Result: planning.StepResult{StepName: "remove_mailbox", Status: planning.StatusCompleted}},
	}

	require.NoError(t, s.PersistSession(ctx, sess, checkpoints))

	// Persisting again overwrites the same document IDs rather than failing.
	require.NoError(t, s.PersistSession(ctx, sess, checkpoints))
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "grant mailbox permission")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "grant mailbox permission")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	e := NewHashingEmbedder(16)

	v, err := e.EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, v, 16)
	assert.Equal(t, float32(1), v[0])
}

func TestHashingEmbedderBatch(t *testing.T) {
	e := NewHashingEmbedder(32)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])
}
