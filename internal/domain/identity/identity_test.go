package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityEqualIgnoresCase(t *testing.T) {
	assert.True(t, Identity("Viral_Steve").Equal("viral_steve"))
	assert.True(t, Identity(" poor_player ").Equal("POOR_PLAYER"))
	assert.False(t, Identity("alice").Equal("bob"))
	assert.True(t, Identity("  ").IsZero())
}

func TestParseList(t *testing.T) {
	s := ParseList("viral_steve, Throwaway_Name,,")

	require.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("VIRAL_STEVE"))
	assert.True(t, s.Contains("throwaway_name"))
	assert.False(t, s.Contains("normal_player"))
}

func TestSetAddRemove(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add("Alice"))
	assert.False(t, s.Add("alice"))
	assert.False(t, s.Add(""))
	assert.Equal(t, []Identity{"Alice"}, s.List())

	assert.True(t, s.Remove("ALICE"))
	assert.False(t, s.Remove("alice"))
	assert.Equal(t, 0, s.Len())
}

func TestSetConcurrentAdd(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	added := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- s.Add("racer")
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}
