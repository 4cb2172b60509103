package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/ai/mock"
	"github.com/poiesic/normdoc/core"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func fastRetry() Option {
	return WithRetry(3, time.Millisecond)
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewGenerator(mock.NewMockEmbedder(), WithBatchSize(0))
	assert.Error(t, err)

	_, err = NewGenerator(mock.NewMockEmbedder(), WithRetry(0, time.Millisecond))
	assert.Error(t, err)
}

func TestGenerator_EmbedBatches(t *testing.T) {
	m := mock.NewMockEmbedder()
	g, err := NewGenerator(m, WithBatchSize(2))
	require.NoError(t, err)

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := g.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.InDelta(t, 1.0, norm(v), 1e-5)
		assert.Equal(t, mock.HashVector(texts[i], mock.DefaultDimensions), v)
	}
	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, mock.DefaultDimensions, g.Dimensions())
}

func TestGenerator_Normalizes(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}
	g, err := NewGenerator(m)
	require.NoError(t, err)

	vectors, err := g.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vectors[0][0], 1e-6)
	assert.InDelta(t, 0.8, vectors[0][1], 1e-6)
}

func TestGenerator_IsolatesFailedItems(t *testing.T) {
	var mu sync.Mutex
	flaky := map[string]int{"bad": 1}
	var singles []string

	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(texts) == 1 {
			singles = append(singles, texts[0])
		}
		for _, text := range texts {
			if flaky[text] > 0 {
				flaky[text]--
				return nil, errors.New("provider hiccup")
			}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.HashVector(text, 8)
		}
		return out, nil
	}
	g, err := NewGenerator(m, WithBatchSize(3), fastRetry())
	require.NoError(t, err)

	vectors, err := g.Embed(context.Background(), []string{"good", "bad", "fine"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, mock.HashVector("bad", 8), vectors[1])
	assert.Equal(t, []string{"good", "bad", "fine"}, singles)
}

func TestGenerator_ProviderUnavailable(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	g, err := NewGenerator(m, fastRetry())
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, core.ErrEmbeddingProviderUnavailable)
	assert.Equal(t, 3, m.CallCount())
}

func TestGenerator_Timeout(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g, err := NewGenerator(m, WithTimeout(5*time.Millisecond), WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	_, err = g.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, core.ErrEmbeddingTimeout)
	assert.Equal(t, 2, m.CallCount())
}

func TestGenerator_DimensionMismatch(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}
	g, err := NewGenerator(m, WithDimensions(2), fastRetry())
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, m.CallCount(), "dimension errors are not retried")
}

func TestGenerator_EmptyText(t *testing.T) {
	g, err := NewGenerator(mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), []string{"a", ""})
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = g.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestGenerator_Canceled(t *testing.T) {
	m := mock.NewMockEmbedder()
	g, err := NewGenerator(m, WithRateLimit(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeVector(t *testing.T) {
	assert.Empty(t, NormalizeVector(nil))
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
	v := NormalizeVector([]float32{1, 1, 1, 1})
	assert.InDelta(t, 1.0, norm(v), 1e-6)
}
