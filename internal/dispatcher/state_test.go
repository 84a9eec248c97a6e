package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelListenWithNoTokenIsNoop(t *testing.T) {
	s := &ServerState{}
	assert.False(t, s.CancelListen())
}

func TestCancelListenTripsCurrentToken(t *testing.T) {
	s := &ServerState{}
	token := s.NewCancelToken()

	assert.True(t, s.CancelListen())
	select {
	case <-token:
	default:
		t.Fatal("token was not tripped")
	}
}

func TestCancelListenIsIdempotentPerToken(t *testing.T) {
	s := &ServerState{}
	s.NewCancelToken()

	assert.True(t, s.CancelListen())
	assert.False(t, s.CancelListen(), "second cancel of the same token reports nothing cancelled")
}

func TestNewCancelTokenReplacesPrevious(t *testing.T) {
	s := &ServerState{}
	old := s.NewCancelToken()
	fresh := s.NewCancelToken()

	assert.True(t, s.CancelListen())
	select {
	case <-old:
		t.Fatal("stale token must not be tripped")
	default:
	}
	select {
	case <-fresh:
	default:
		t.Fatal("current token was not tripped")
	}
}
