package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "game/g1/moves", MovesTopic("g1"))
	assert.Equal(t, "game/g1/resigned", ResignedTopic("g1"))
	assert.Equal(t, "game/g1/abandoned", AbandonedTopic("g1"))
	assert.Equal(t, "user/u1/game-start", UserEventTopic("u1", EventGameStart))

	tests := []struct {
		sub, topic string
		want       bool
	}{
		{"game/g1/moves", "game/g1/moves", true},
		{"game/g1", "game/g1/moves", true},
		{"game/g1", "game/g10/moves", false},
		{"user/u1", "user/u1/invitations", true},
		{"user/u1", "user/u2/invitations", false},
		{"presence", "presence", true},
	}
	for _, tt := range tests {
		if got := TopicMatches(tt.sub, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.sub, tt.topic, got, tt.want)
		}
	}

	assert.Equal(t, "moves", TopicEvent("game/g1/moves"))
	assert.Equal(t, "presence", TopicEvent(PresenceTopic))
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("g1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())

	// Different keys do not block each other.
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}
