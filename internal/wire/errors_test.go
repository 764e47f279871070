package wire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStringKnownSentinel(t *testing.T) {
	assert.Equal(t, "Channel not found", ErrorString(ErrChannelNotFound))
	assert.Equal(t, "Peer not authenticated", ErrorString(ErrPeerNotAuthenticated))
}

func TestErrorStringWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("subscribe: %w", ErrNotSubscribed)
	assert.Equal(t, "Peer is not subscribed to channel", ErrorString(wrapped))
}

func TestErrorStringUnrecognizedCollapsesToUnknown(t *testing.T) {
	assert.Equal(t, ErrUnknown.Error(), ErrorString(errors.New("some driver-specific failure")))
}
