package locker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockAndRelease(t *testing.T) {
	l := New()
	key := Key{Family: "dx", Chunk: 7}

	assert.True(t, l.Lock(key, "job-1"))
	assert.True(t, l.Locked(key))
	assert.False(t, l.Lock(key, "job-2"), "chunk already held")
	assert.False(t, l.Lock(key, "job-1"), "locking is not reentrant")

	l.Release(key)
	assert.False(t, l.Locked(key))
	assert.True(t, l.Lock(key, "job-2"))
}

func TestLockAllIsAtomic(t *testing.T) {
	l := New()
	keys := []Key{{Family: "dx", Chunk: 1}, {Family: "dx", Chunk: 2}, {Family: "dx", Chunk: 3}}

	assert.True(t, l.Lock(keys[1], "job-0"))

	assert.False(t, l.LockAll(keys, "job-1"), "one key already held so none should be acquired")
	assert.False(t, l.Locked(keys[0]), "all-or-nothing: unrelated key must not be left locked")
	assert.False(t, l.Locked(keys[2]))

	l.Release(keys[1])
	assert.True(t, l.LockAll(keys, "job-1"))
	for _, k := range keys {
		assert.True(t, l.Locked(k))
	}
}

func TestReleaseByJobIsIdempotentAndScoped(t *testing.T) {
	l := New()
	a := Key{Family: "dx", Chunk: 1}
	b := Key{Family: "dx", Chunk: 2}
	c := Key{Family: "dy", Chunk: 1}

	l.Lock(a, "job-1")
	l.Lock(b, "job-1")
	l.Lock(c, "job-2")

	l.ReleaseByJob("job-1")
	assert.False(t, l.Locked(a))
	assert.False(t, l.Locked(b))
	assert.True(t, l.Locked(c), "unrelated job's lock must survive")

	assert.NotPanics(t, func() { l.ReleaseByJob("job-1") })
	assert.Empty(t, l.LockedByJob("job-1"))
}

func TestCount(t *testing.T) {
	l := New()
	assert.Equal(t, 0, l.Count())
	l.Lock(Key{Family: "dx", Chunk: 1}, "job-1")
	l.Lock(Key{Family: "dx", Chunk: 2}, "job-1")
	assert.Equal(t, 2, l.Count())
	l.Release(Key{Family: "dx", Chunk: 1})
	assert.Equal(t, 1, l.Count())
}
