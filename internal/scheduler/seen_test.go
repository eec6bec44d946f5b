package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenSet(t *testing.T) {
	t.Run("add reports only the first sighting", func(t *testing.T) {
		seen := NewSeenSet()

		assert.True(t, seen.Add("alice", "m1"))
		assert.False(t, seen.Add("alice", "m1"))
		assert.Equal(t, 1, seen.Len("alice"))
	})

	t.Run("ids are scoped per user", func(t *testing.T) {
		seen := NewSeenSet()
		seen.Seed("alice", "m1")

		assert.True(t, seen.Contains("alice", "m1"))
		assert.False(t, seen.Contains("bob", "m1"))
		assert.True(t, seen.Add("bob", "m1"))
	})

	t.Run("seeding an empty history still marks the user known", func(t *testing.T) {
		seen := NewSeenSet()
		assert.False(t, seen.KnowsUser("alice"))

		seen.Seed("alice")
		assert.True(t, seen.KnowsUser("alice"))
		assert.Equal(t, 0, seen.Len("alice"))
	})
}
