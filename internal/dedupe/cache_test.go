// ABOUTME: Tests for the message ID dedupe cache
// ABOUTME: Covers TTL expiry, capacity eviction, and concurrent access

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_NewKeyThenDuplicate(t *testing.T) {
	c := New(time.Minute, 10, time.Minute)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))
	assert.False(t, c.Seen("msg-2"))
}

func TestSeen_ExpiredKeyIsNew(t *testing.T) {
	c := New(20*time.Millisecond, 10, time.Minute)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))
}

func TestSeen_CapacityEvictsOldest(t *testing.T) {
	c := New(time.Minute, 3, time.Minute)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	c.Seen("d") // evicts a

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("b"))
}

func TestForgetReleasesKey(t *testing.T) {
	c := New(time.Minute, 10, time.Minute)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	c.Forget("msg-1")
	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))

	// Forgetting an unknown key is a no-op
	c.Forget("never-seen")
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New(10*time.Millisecond, 100, 20*time.Millisecond)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000, time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	duplicates := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if c.Seen(fmt.Sprintf("msg-%d", j)) {
					mu.Lock()
					duplicates++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// Each of the 50 keys is new exactly once across all goroutines.
	assert.Equal(t, 10*50-50, duplicates)
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10, time.Minute)
	c.Close()
	c.Close()
}
