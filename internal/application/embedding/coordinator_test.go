package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
	vectormath "github.com/consearch/backend/internal/domain/embedding"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 可编程的提供方替身
type fakeProvider struct {
	calls     atomic.Int32
	available bool
	err       error
	vector    []float32
}

func (p *fakeProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	out := make([]float32, len(p.vector))
	copy(out, p.vector)
	return out, nil
}

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return p.available }

func (p *fakeProvider) Model() string { return "test-model" }

func newTestCoordinator(t *testing.T, provider Provider) (*Coordinator, conversation.MessageRepository, conversation.EmbeddingRepository) {
	t.Helper()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	messageRepo := storage.NewMessageRepository(db)
	embeddingRepo := storage.NewEmbeddingRepository(db)

	cfg := &config.EmbeddingConfig{
		MinContentChars: 8,
		BatchSize:       2,
		BatchPause:      time.Millisecond,
	}
	return NewCoordinator(provider, embeddingRepo, messageRepo, cfg), messageRepo, embeddingRepo
}

func insertMessage(t *testing.T, repo conversation.MessageRepository, sessionID string, lineIndex int, content string) int64 {
	t.Helper()
	id, inserted, err := repo.InsertMessage(&conversation.Message{
		SessionID:   sessionID,
		LineIndex:   lineIndex,
		ProjectPath: "/p",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Role:        conversation.RoleUser,
		Content:     content,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

func TestGenerateAndStore(t *testing.T) {
	provider := &fakeProvider{vector: []float32{3, 4}}
	coord, messageRepo, embeddingRepo := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "a reasonably long message body")

	require.NoError(t, coord.GenerateAndStore(context.Background(), id, "a reasonably long message body"))

	// 持久化的向量已单位归一化
	stored, err := embeddingRepo.GetEmbedding(id, "test-model")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 0.6, stored[0], 1e-4)
	assert.InDelta(t, 0.8, stored[1], 1e-4)
}

func TestGenerateAndStore_SecondCallShortCircuits(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0}}
	coord, messageRepo, _ := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "a reasonably long message body")
	content := "a reasonably long message body"

	require.NoError(t, coord.GenerateAndStore(context.Background(), id, content))
	require.NoError(t, coord.GenerateAndStore(context.Background(), id, content))

	// 第二次调用命中已有 embedding，只有一次外部调用
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestGenerateAndStore_ShortContentSkipsProvider(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0}}
	coord, messageRepo, embeddingRepo := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "ok")

	require.NoError(t, coord.GenerateAndStore(context.Background(), id, "ok"))
	require.NoError(t, coord.GenerateAndStore(context.Background(), id, "   \n  "))

	assert.Equal(t, int32(0), provider.calls.Load())
	has, err := embeddingRepo.HasEmbedding(id, "test-model")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGenerateAndStore_ProviderFailureIsError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	coord, messageRepo, _ := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "a reasonably long message body")

	err := coord.GenerateAndStore(context.Background(), id, "a reasonably long message body")
	assert.Error(t, err)
}

func TestGenerateMissing(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	coord, messageRepo, embeddingRepo := newTestCoordinator(t, provider)

	for i := 0; i < 5; i++ {
		insertMessage(t, messageRepo, "s1", i, "message body with enough characters")
	}

	var progressCalls []int
	succeeded, failed, err := coord.GenerateMissing(context.Background(), func(current, total int) {
		assert.Equal(t, 5, total)
		progressCalls = append(progressCalls, current)
	})
	require.NoError(t, err)

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, progressCalls)

	count, err := embeddingRepo.CountEmbeddings("test-model")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestGenerateMissing_FailuresAreCountedNotFatal(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	coord, messageRepo, _ := newTestCoordinator(t, provider)

	insertMessage(t, messageRepo, "s1", 0, "message body with enough characters")
	insertMessage(t, messageRepo, "s1", 1, "another body with enough characters")

	succeeded, failed, err := coord.GenerateMissing(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 2, failed)
}

func TestGenerateQueryEmbedding(t *testing.T) {
	provider := &fakeProvider{vector: []float32{0, 3, 4}}
	coord, _, _ := newTestCoordinator(t, provider)

	vector, err := coord.GenerateQueryEmbedding(context.Background(), "some query")
	require.NoError(t, err)

	// 查询向量同样归一化，但从不持久化
	assert.InDelta(t, 1.0, vectormath.Cosine(vector, vector), 1e-4)
	assert.InDelta(t, 0.6, vector[1], 1e-4)
}

func TestGetOrGenerate(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0}}
	coord, messageRepo, _ := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "a reasonably long message body")

	first, err := coord.GetOrGenerate(context.Background(), id, "a reasonably long message body")
	require.NoError(t, err)
	require.NotNil(t, first)

	// 第二次直接命中存储
	second, err := coord.GetOrGenerate(context.Background(), id, "a reasonably long message body")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestCoverageStats(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0}}
	coord, messageRepo, _ := newTestCoordinator(t, provider)

	id := insertMessage(t, messageRepo, "s1", 0, "a reasonably long message body")
	insertMessage(t, messageRepo, "s1", 1, "another long enough message body")

	require.NoError(t, coord.GenerateAndStore(context.Background(), id, "a reasonably long message body"))

	stats, err := coord.CoverageStats()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 1, stats.EmbeddedMessages)
	assert.Equal(t, "test-model", stats.Model)
	assert.InDelta(t, 0.5, stats.Coverage(), 1e-9)
}
