// Package kmeans clusters embedding vectors with a seeded k-means++ start so
// repeated runs over the same input give the same centroids.
package kmeans

import (
	"errors"
	"math"
	"math/rand"
)

var ErrInvalidInput = errors.New("kmeans: invalid input")

type Options struct {
	K             int
	Seed          int64
	MaxIterations int
}

// Cluster returns K centroids for vectors. K is clamped to len(vectors).
func Cluster(vectors [][]float32, opts Options) ([][]float64, error) {
	if len(vectors) == 0 || opts.K <= 0 {
		return nil, ErrInvalidInput
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrInvalidInput
	}
	points := make([][]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, ErrInvalidInput
		}
		p := make([]float64, dim)
		for j, x := range v {
			p[j] = float64(x)
		}
		points[i] = p
	}

	k := opts.K
	if k > len(points) {
		k = len(points)
	}
	iterations := opts.MaxIterations
	if iterations <= 0 {
		iterations = 100
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := seedPlusPlus(points, k, rng)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := assign[i]
			counts[c]++
			for j, x := range p {
				sums[c][j] += x
			}
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return centroids, nil
}

// Nearest returns, for each centroid, the index of the closest vector by
// Euclidean distance. Ties go to the lower index.
func Nearest(vectors [][]float32, centroids [][]float64) []int {
	out := make([]int, 0, len(centroids))
	for _, c := range centroids {
		best := -1
		bestDist := math.Inf(1)
		for i, v := range vectors {
			d := squaredDistance32(v, c)
			if d < bestDist {
				best = i
				bestDist = d
			}
		}
		out = append(out, best)
	}
	return out
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(len(points))]))

	dists := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := squaredDistance(p, centroids[nearestCentroid(p, centroids)])
			dists[i] = d
			total += d
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, clone(points[rng.Intn(len(points))]))
			continue
		}
		target := rng.Float64() * total
		picked := len(points) - 1
		for i, d := range dists {
			target -= d
			if target <= 0 {
				picked = i
				break
			}
		}
		centroids = append(centroids, clone(points[picked]))
	}
	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		d := squaredDistance(p, centroid)
		if d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func squaredDistance32(a []float32, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - b[i]
		sum += d * d
	}
	return sum
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
