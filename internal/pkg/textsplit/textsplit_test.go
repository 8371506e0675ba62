package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPageKeepsLineRangesAndOverlap(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, strings.Repeat("x", 99))
	}
	s := New(1000, 200)
	passages := s.SplitPage(3, strings.Join(lines, "\n"))

	require.Greater(t, len(passages), 1)
	for _, p := range passages {
		require.Equal(t, 3, p.Page)
		require.LessOrEqual(t, len(p.Text), 1000)
		require.LessOrEqual(t, p.LineFrom, p.LineTo)
	}
	require.Equal(t, 1, passages[0].LineFrom)
	require.Equal(t, 30, passages[len(passages)-1].LineTo)
	// consecutive passages overlap by at least one line
	require.LessOrEqual(t, passages[1].LineFrom, passages[0].LineTo)
}

func TestSplitPageSkipsBlankLines(t *testing.T) {
	passages := New(1000, 200).SplitPage(1, "\n\nhello\n\nworld\n")
	require.Len(t, passages, 1)
	require.Equal(t, "hello\nworld", passages[0].Text)
	require.Equal(t, 3, passages[0].LineFrom)
	require.Equal(t, 5, passages[0].LineTo)
}

func TestSplitPageCutsLongLine(t *testing.T) {
	passages := New(100, 20).SplitPage(1, strings.Repeat("a", 250))
	require.Len(t, passages, 3)
	for _, p := range passages {
		require.LessOrEqual(t, len(p.Text), 100)
	}
}

func TestWindows(t *testing.T) {
	w := Windows("aaa bbb ccc ddd", 8)
	require.Equal(t, []string{"aaa bbb", "ccc ddd"}, w)
	require.Nil(t, Windows("   ", 8))
}
