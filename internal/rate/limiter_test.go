package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.now = clock.now
	return m, clock
}

func TestAllowWithinWindow(t *testing.T) {
	m, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		ok, _ := m.Allow("k", 3, time.Minute)
		assert.True(t, ok, "hit %d", i)
	}
	clock.t = clock.t.Add(20 * time.Second)
	ok, retry := m.Allow("k", 3, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	// other keys are independent
	ok, _ = m.Allow("other", 3, time.Minute)
	assert.True(t, ok)
}

func TestWindowResets(t *testing.T) {
	m, clock := newTestLimiter()

	ok, _ := m.Allow("k", 1, time.Minute)
	assert.True(t, ok)
	ok, _ = m.Allow("k", 1, time.Minute)
	assert.False(t, ok)

	clock.t = clock.t.Add(time.Minute)
	ok, _ = m.Allow("k", 1, time.Minute)
	assert.True(t, ok)
}

func TestZeroLimitDisables(t *testing.T) {
	m, _ := newTestLimiter()
	for i := 0; i < 100; i++ {
		ok, _ := m.Allow("k", 0, time.Minute)
		assert.True(t, ok)
	}
	assert.Equal(t, 0, m.Len())
}

func TestSweep(t *testing.T) {
	m, clock := newTestLimiter()
	m.Allow("a", 5, time.Second)
	m.Allow("b", 5, time.Hour)
	assert.Equal(t, 2, m.Len())

	clock.t = clock.t.Add(2 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "auth:10.0.0.1", Key("auth", "10.0.0.1"))
	assert.Equal(t, "post:42", Key("post", "42"))
}
