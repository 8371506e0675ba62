package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchat/internal/ai"
	"docchat/internal/pkg/kmeans"
	"docchat/internal/pkg/textsplit"
	"docchat/internal/platform/logger"
)

const sectionConcurrency = 4

type SummaryOptions struct {
	ThresholdChars   int
	MaxClusters      int
	RechunkChars     int
	Seed             int64
	KMeansIterations int
}

// ClusterFunc returns k centroids for vectors.
type ClusterFunc func(vectors [][]float32, k int) ([][]float64, error)

// Summarizer condenses a document into one verbose summary. Documents above
// the threshold are reduced to k representative passages first so the cost
// stays bounded however long the input is.
type Summarizer struct {
	log     *logger.Logger
	opts    SummaryOptions
	cluster ClusterFunc
}

func NewSummarizer(log *logger.Logger, opts SummaryOptions) *Summarizer {
	if opts.ThresholdChars <= 0 {
		opts.ThresholdChars = 20000
	}
	if opts.MaxClusters <= 0 {
		opts.MaxClusters = 10
	}
	if opts.RechunkChars <= 0 {
		opts.RechunkChars = 2000
	}
	s := &Summarizer{log: log.With("service", "Summarizer"), opts: opts}
	s.cluster = func(vectors [][]float32, k int) ([][]float64, error) {
		return kmeans.Cluster(vectors, kmeans.Options{
			K:             k,
			Seed:          opts.Seed,
			MaxIterations: opts.KMeansIterations,
		})
	}
	return s
}

// Summarize expects vectors[i] to be the embedding of passages[i]. Failures of
// the final pass are logged and yield an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, gen ai.Generator, passages []string, vectors [][]float32) (string, error) {
	if len(passages) == 0 {
		return "", nil
	}
	if len(passages) != len(vectors) {
		return "", fmt.Errorf("%w: %d passages but %d vectors", ErrInvalidInput, len(passages), len(vectors))
	}

	total := 0
	for _, p := range passages {
		total += len(p)
	}
	if total <= s.opts.ThresholdChars {
		return s.finalPass(ctx, gen, passages, summarizeMapPrompt), nil
	}

	k := clusterCount(total, s.opts.ThresholdChars, s.opts.MaxClusters)
	picked, err := s.representatives(vectors, k)
	if err != nil {
		return "", err
	}
	s.log.Debug("summarizing representative passages", "total_chars", total, "clusters", k)

	sections := make([]string, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionConcurrency)
	for i, idx := range picked {
		i, idx := i, idx
		g.Go(func() error {
			out, err := gen.Generate(gctx, ai.GenerateRequest{
				Messages: userPrompt(fill(sectionSummaryPrompt, map[string]string{"text": passages[idx]})),
			}, nil)
			if err != nil {
				return upstream("model", err)
			}
			sections[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	chunks := textsplit.Windows(strings.Join(sections, "\n"), s.opts.RechunkChars)
	return s.finalPass(ctx, gen, chunks, summarizeCombinePrompt), nil
}

// representatives picks, per centroid, the nearest passage and returns the
// distinct picks in document order. Centroids sharing a nearest passage
// yield fewer than k representatives.
func (s *Summarizer) representatives(vectors [][]float32, k int) ([]int, error) {
	centroids, err := s.cluster(vectors, k)
	if err != nil {
		return nil, fmt.Errorf("cluster passages failed: %w", err)
	}
	picked := kmeans.Nearest(vectors, centroids)
	slices.Sort(picked)
	return slices.Compact(picked), nil
}

func (s *Summarizer) finalPass(ctx context.Context, gen ai.Generator, chunks []string, combinePrompt string) string {
	out, err := mapReduceSummary(ctx, gen, chunks, combinePrompt)
	if err != nil {
		s.log.Error("final summary pass failed", "error", err)
		return ""
	}
	return out
}

func mapReduceSummary(ctx context.Context, gen ai.Generator, chunks []string, combinePrompt string) (string, error) {
	if len(chunks) == 0 {
		return "", errors.New("nothing to summarize")
	}
	partials := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mapConcurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			out, err := gen.Generate(gctx, ai.GenerateRequest{
				Messages: userPrompt(fill(summarizeMapPrompt, map[string]string{"text": chunks[i]})),
			}, nil)
			if err != nil {
				return upstream("model", err)
			}
			partials[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out, err := gen.Generate(ctx, ai.GenerateRequest{
		Messages: userPrompt(fill(combinePrompt, map[string]string{"text": strings.Join(partials, "\n\n")})),
		Terminal: true,
	}, nil)
	if err != nil {
		return "", upstream("model", err)
	}
	return strings.TrimSpace(out), nil
}

// clusterCount is round(total/threshold) capped at maxClusters, never below 1.
func clusterCount(totalChars, threshold, maxClusters int) int {
	k := int(math.Round(float64(totalChars) / float64(threshold)))
	if k > maxClusters {
		k = maxClusters
	}
	if k < 1 {
		k = 1
	}
	return k
}
