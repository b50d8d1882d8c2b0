// ABOUTME: Tests for the session registry used to bound conversation state.
// ABOUTME: Validates TTL expiry, capacity eviction, pinning, and concurrency safety.

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration, maxSize int) *Store {
	t.Helper()
	s := NewStore(ttl, time.Minute, maxSize, nil)
	t.Cleanup(s.Close)
	return s
}

func TestGetOrCreate_New(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	sess, err := s.GetOrCreate("telegram", "42", "alice")
	require.NoError(t, err)

	assert.Equal(t, "telegram_42", sess.ID)
	assert.Equal(t, "telegram", sess.Platform)
	assert.Equal(t, "42", sess.UserID)
	assert.Equal(t, "alice", sess.Nickname)
	assert.Equal(t, 0, sess.MessageCount)
	assert.False(t, sess.LastActivity.Before(sess.CreatedAt))
}

func TestGetOrCreate_Reuse(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	first, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)

	second, err := s.GetOrCreate("t", "1", "someone-else")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	// Nickname from the first request sticks
	assert.Equal(t, "alice", second.Nickname)
	assert.Equal(t, 1, s.Len())
}

func TestGetOrCreate_Concurrent_NoDuplicates(t *testing.T) {
	s := newTestStore(t, time.Hour, 100)

	const n = 50
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := s.GetOrCreate("t", "1", "alice")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "t_1", id)
	}
	assert.Equal(t, 1, s.Len())
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	_, err := s.Get("t_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_Expired(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond, 10)

	_, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = s.Get("t_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreate_ExpiredRecreated(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond, 10)

	first, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)
	s.Touch(first.ID)

	time.Sleep(30 * time.Millisecond)

	second, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	// Fresh session: the counter starts over
	assert.Equal(t, 0, second.MessageCount)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestTouch(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	sess, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)

	s.Touch(sess.ID)
	s.Touch(sess.ID)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.False(t, got.LastActivity.Before(sess.LastActivity))
}

func TestGet_Idempotent(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	sess, err := s.GetOrCreate("t", "1", "alice")
	require.NoError(t, err)
	s.Touch(sess.ID)

	a, err := s.Get(sess.ID)
	require.NoError(t, err)
	b, err := s.Get(sess.ID)
	require.NoError(t, err)

	assert.Equal(t, a.MessageCount, b.MessageCount)
	assert.Equal(t, a.LastActivity, b.LastActivity)
}

func TestList_OrderedByRecency(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	for i := 0; i < 3; i++ {
		_, err := s.GetOrCreate("t", fmt.Sprintf("%d", i), "u")
		require.NoError(t, err)
	}

	// Touch the oldest so it becomes most recent
	s.Touch("t_0")

	sessions := s.List()
	require.Len(t, sessions, 3)
	assert.Equal(t, "t_0", sessions[0].ID)
	assert.Equal(t, "t_2", sessions[1].ID)
	assert.Equal(t, "t_1", sessions[2].ID)
}

func TestCapacity_EvictsLeastRecentlyActive(t *testing.T) {
	s := newTestStore(t, time.Hour, 2)

	_, err := s.GetOrCreate("t", "1", "u")
	require.NoError(t, err)
	_, err = s.GetOrCreate("t", "2", "u")
	require.NoError(t, err)

	// Make t_1 the most recently active
	s.Touch("t_1")

	_, err = s.GetOrCreate("t", "3", "u")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	_, err = s.Get("t_2")
	assert.ErrorIs(t, err, ErrNotFound, "least-recently-active session should be evicted")
	_, err = s.Get("t_1")
	assert.NoError(t, err)
}

func TestCapacity_AllPinned(t *testing.T) {
	s := newTestStore(t, time.Hour, 2)

	a, err := s.GetOrCreate("t", "1", "u")
	require.NoError(t, err)
	b, err := s.GetOrCreate("t", "2", "u")
	require.NoError(t, err)

	s.Acquire(a.ID)
	s.Acquire(b.ID)

	_, err = s.GetOrCreate("t", "3", "u")
	assert.ErrorIs(t, err, ErrCapacity)

	// Releasing one frees an eviction candidate
	s.Release(a.ID)
	_, err = s.GetOrCreate("t", "3", "u")
	assert.NoError(t, err)
}

func TestCapacity_SkipsPinnedEvictsNext(t *testing.T) {
	s := newTestStore(t, time.Hour, 2)

	a, err := s.GetOrCreate("t", "1", "u")
	require.NoError(t, err)
	_, err = s.GetOrCreate("t", "2", "u")
	require.NoError(t, err)

	// Pin the oldest; eviction must pick t_2 instead
	s.Acquire(a.ID)

	_, err = s.GetOrCreate("t", "3", "u")
	require.NoError(t, err)

	_, err = s.Get("t_1")
	assert.NoError(t, err)
	_, err = s.Get("t_2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, time.Hour, 10)

	sess, err := s.GetOrCreate("t", "1", "u")
	require.NoError(t, err)

	assert.True(t, s.Delete(sess.ID))
	assert.False(t, s.Delete(sess.ID))
	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweep_RemovesExpired(t *testing.T) {
	s := NewStore(10*time.Millisecond, 20*time.Millisecond, 10, nil)
	defer s.Close()

	_, err := s.GetOrCreate("t", "1", "u")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	s := NewStore(time.Hour, time.Minute, 10, nil)
	s.Close()
	s.Close()
}

func TestConcurrentMixedOperations(t *testing.T) {
	s := newTestStore(t, time.Hour, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i%10)
			sess, err := s.GetOrCreate("t", id, "u")
			if err != nil {
				t.Error(err)
				return
			}
			s.Acquire(sess.ID)
			s.Touch(sess.ID)
			s.List()
			s.Release(sess.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
}
