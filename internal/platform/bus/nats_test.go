package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectReportsUnreachableServer(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "odyssey-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform/bus: connect")
}

func TestSubscriberDefaultsLogger(t *testing.T) {
	sub := NewNATSSubscriber(nil, "workers", nil)
	assert.NotNil(t, sub.logger)
	assert.Equal(t, "workers", sub.group)
}
