package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewClientRejectsEmptyAddr(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestNewClientUnreachable(t *testing.T) {
	// port 1 is reserved and refuses connections on test hosts
	_, err := NewClient(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, nil)
	assert.ErrorContains(t, err, "redis ping 127.0.0.1:1")
}
