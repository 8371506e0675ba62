package kmeans

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func twoBlobs() [][]float32 {
	return [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}
}

func TestClusterSeparatesBlobs(t *testing.T) {
	vectors := twoBlobs()
	centroids, err := Cluster(vectors, Options{K: 2, Seed: 42})
	require.NoError(t, err)
	require.Len(t, centroids, 2)

	reps := Nearest(vectors, centroids)
	sort.Ints(reps)
	require.Less(t, reps[0], 3)
	require.GreaterOrEqual(t, reps[1], 3)
}

func TestClusterIsDeterministicForSeed(t *testing.T) {
	vectors := twoBlobs()
	a, err := Cluster(vectors, Options{K: 2, Seed: 7})
	require.NoError(t, err)
	b, err := Cluster(vectors, Options{K: 2, Seed: 7})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestClusterClampsK(t *testing.T) {
	centroids, err := Cluster([][]float32{{1, 1}, {2, 2}}, Options{K: 5, Seed: 1})
	require.NoError(t, err)
	require.Len(t, centroids, 2)
}

func TestNearestBreaksTiesByFirstIndex(t *testing.T) {
	vectors := [][]float32{{1, 0}, {-1, 0}, {1, 0}}
	reps := Nearest(vectors, [][]float64{{0, 0}, {1, 0}})
	require.Equal(t, []int{0, 0}, reps)
}

func TestClusterRejectsBadInput(t *testing.T) {
	_, err := Cluster(nil, Options{K: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = Cluster([][]float32{{1, 2}, {1}}, Options{K: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
}
