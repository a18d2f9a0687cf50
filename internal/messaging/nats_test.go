package messaging

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverySubject(t *testing.T) {
	assert.Equal(t, "presence.deliver.api-2", DeliverySubject("api-2"))
}

func TestEncodeDecodeDelivery(t *testing.T) {
	data, err := EncodeDelivery("u1", []byte(`{"type":"newMatch","_id":"u2"}`))
	require.NoError(t, err)

	d, err := DecodeDelivery(data)
	require.NoError(t, err)
	assert.Equal(t, "u1", d.UserID)
	assert.JSONEq(t, `{"type":"newMatch","_id":"u2"}`, string(d.Frame))
}

func TestEncodeDeliveryRejectsInvalidFrame(t *testing.T) {
	_, err := EncodeDelivery("u1", []byte("not json"))
	assert.Error(t, err)
}

func TestDecodeDeliveryErrors(t *testing.T) {
	for _, input := range []string{`{`, `{"user_id":"u1"}`, `{"frame":{}}`} {
		_, err := DecodeDelivery([]byte(input))
		assert.Error(t, err, input)
	}
}

// TestForwardRoundTrip needs a NATS server; it is skipped unless
// TEST_NATS_URL is set.
func TestForwardRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	cfg := DefaultNATSConfig()
	cfg.URL = url
	client, err := NewNATSClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	got := make(chan string, 1)
	require.NoError(t, client.SubscribeDeliveries("test-node", func(userID string, frame []byte) {
		got <- userID + " " + string(frame)
	}))

	require.NoError(t, client.Forward("test-node", "u7", []byte(`{"type":"pong"}`)))

	select {
	case v := <-got:
		assert.Equal(t, `u7 {"type":"pong"}`, v)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not received")
	}
}
