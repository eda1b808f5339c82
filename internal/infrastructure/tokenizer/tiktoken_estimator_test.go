package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokenEstimator_CountTokens(t *testing.T) {
	estimator, err := GetTiktokenEstimator()
	require.NoError(t, err)

	assert.Equal(t, 0, estimator.CountTokens(""))

	// 英文文本：token 数应小于字符数且大于 0
	text := "How do I configure FTS5 external content tables in SQLite?"
	count := estimator.CountTokens(text)
	assert.Greater(t, count, 0)
	assert.Less(t, count, len(text))
}

func TestTiktokenEstimator_CountTokensBatch(t *testing.T) {
	estimator, err := GetTiktokenEstimator()
	require.NoError(t, err)

	texts := []string{"hello world", "goodbye world"}
	total := estimator.CountTokensBatch(texts)

	sum := estimator.CountTokens(texts[0]) + estimator.CountTokens(texts[1])
	assert.Equal(t, sum, total)
}

func TestTiktokenEstimator_Singleton(t *testing.T) {
	first, err := GetTiktokenEstimator()
	require.NoError(t, err)

	second, err := GetTiktokenEstimator()
	require.NoError(t, err)

	assert.Same(t, first, second)
}
