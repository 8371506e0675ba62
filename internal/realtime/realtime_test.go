package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeMessageUpdated(t *testing.T) {
	b, err := Encode(MessageUpdated("chat-1", 2, "Ref"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, EventMessageUpdated, got["type"])
	require.Equal(t, "chat-1", got["chatId"])
	require.EqualValues(t, 2, got["index"])
	require.Equal(t, "Ref", got["content"])
	require.NotContains(t, got, "status")
}

func TestChannelUsesPrefix(t *testing.T) {
	d := NewRedisDeliverer(nil, "")
	require.Equal(t, "docchat:conn:abc", d.channel("abc"))
}
