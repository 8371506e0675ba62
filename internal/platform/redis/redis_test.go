package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/platform/logger"
)

func TestNewFailsWhenUnreachable(t *testing.T) {
	_, err := New(context.Background(), logger.NewNop(), Options{Addr: "127.0.0.1:1"})
	require.ErrorContains(t, err, "ping redis 127.0.0.1:1 failed")
}
