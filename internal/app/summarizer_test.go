package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
)

type clusterSpy struct {
	mu    sync.Mutex
	calls []int
	next  ClusterFunc
}

func (s *clusterSpy) cluster(vectors [][]float32, k int) ([][]float64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, k)
	s.mu.Unlock()
	return s.next(vectors, k)
}

func newSpiedSummarizer(opts SummaryOptions) (*Summarizer, *clusterSpy) {
	s := NewSummarizer(newHarnessLogger(), opts)
	spy := &clusterSpy{next: s.cluster}
	s.cluster = spy.cluster
	return s, spy
}

func echoGenerator() *fakeGenerator {
	return &fakeGenerator{respond: func(req ai.GenerateRequest) (string, error) {
		prompt := req.Messages[0].Content
		if strings.HasPrefix(prompt, "You will be given a single passage") {
			return "section", nil
		}
		return "summary", nil
	}}
}

func passagesOf(n, size int) ([]string, [][]float32) {
	passages := make([]string, n)
	vectors := make([][]float32, n)
	for i := range passages {
		passages[i] = strings.Repeat("a", size)
		vectors[i] = []float32{float32(i), float32(i % 3)}
	}
	return passages, vectors
}

func TestSummarizeShortDocumentSkipsClustering(t *testing.T) {
	s, spy := newSpiedSummarizer(SummaryOptions{Seed: 42})
	gen := echoGenerator()
	passages, vectors := passagesOf(20, 1000) // exactly 20,000 characters

	out, err := s.Summarize(context.Background(), gen, passages, vectors)
	require.NoError(t, err)
	require.Equal(t, "summary", out)
	require.Empty(t, spy.calls)

	calls := gen.snapshot()
	require.Len(t, calls, 21, "one map call per passage plus the combine")
	for _, c := range calls {
		require.NotContains(t, c.req.Messages[0].Content, "single passage of a book")
	}
}

func TestSummarizeLongDocumentUsesFiveClusters(t *testing.T) {
	s, spy := newSpiedSummarizer(SummaryOptions{Seed: 42})
	gen := echoGenerator()
	passages, vectors := passagesOf(95, 1000)

	out, err := s.Summarize(context.Background(), gen, passages, vectors)
	require.NoError(t, err)
	require.Equal(t, "summary", out)
	require.Equal(t, []int{5}, spy.calls)

	sections := 0
	for _, c := range gen.snapshot() {
		if strings.HasPrefix(c.req.Messages[0].Content, "You will be given a single passage") {
			sections++
		}
	}
	require.Equal(t, 5, sections)
}

func TestClusterCount(t *testing.T) {
	require.Equal(t, 5, clusterCount(95000, 20000, 10))
	require.Equal(t, 10, clusterCount(1_000_000, 20000, 10))
	require.Equal(t, 1, clusterCount(20001, 20000, 10))
	require.Equal(t, 2, clusterCount(30000, 20000, 10))
}

func TestRepresentativesAreNearestInDocumentOrder(t *testing.T) {
	s := NewSummarizer(newHarnessLogger(), SummaryOptions{})
	// Centroids listed out of document order; each sits next to one vector.
	s.cluster = func([][]float32, int) ([][]float64, error) {
		return [][]float64{{9.9, 0}, {0.1, 0}, {5.2, 0}}, nil
	}
	vectors := [][]float32{{0, 0}, {1, 0}, {5, 0}, {6, 0}, {10, 0}}

	picked, err := s.representatives(vectors, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 4}, picked)
}

func TestRepresentativesDropSharedNearestPassage(t *testing.T) {
	s := NewSummarizer(newHarnessLogger(), SummaryOptions{})
	// Two coincident centroids both resolve to the first duplicate vector.
	s.cluster = func([][]float32, int) ([][]float64, error) {
		return [][]float64{{1, 0}, {1, 0}, {8, 0}}, nil
	}
	vectors := [][]float32{{1, 0}, {1, 0}, {8, 0}}

	picked, err := s.representatives(vectors, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, picked)
}

func TestSummarizeSwallowsFinalPassFailure(t *testing.T) {
	s := NewSummarizer(newHarnessLogger(), SummaryOptions{})
	gen := &fakeGenerator{respond: func(ai.GenerateRequest) (string, error) {
		return "", errors.New("rate limited")
	}}
	passages, vectors := passagesOf(2, 100)

	out, err := s.Summarize(context.Background(), gen, passages, vectors)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSummarizeRejectsMisalignedInput(t *testing.T) {
	s := NewSummarizer(newHarnessLogger(), SummaryOptions{})
	_, err := s.Summarize(context.Background(), echoGenerator(), []string{"a", "b"}, [][]float32{{1}})
	require.ErrorIs(t, err, ErrInvalidInput)
}
