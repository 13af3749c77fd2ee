package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestResponseCache_PutGet(t *testing.T) {
	c := New(5*time.Minute, 10)
	key := Key("what is the refund policy?", 420)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, "30 days")
	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "30 days", got)

	c.Put(key, "60 days")
	got, _ = c.Get(key)
	assert.Equal(t, "60 days", got)
}

func TestResponseCache_Expiry(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := New(time.Minute, 10).WithClock(clk.Now)

	c.Put("k", "v")
	clk.now = clk.now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.now = clk.now.Add(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "stale entries stay until pruned or overwritten")

	c.Put("k", "fresh")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", got)
}

func TestResponseCache_BoundedGrowth(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := New(time.Minute, 3).WithClock(clk.Now)

	c.Put("old", "x")
	clk.now = clk.now.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		clk.now = clk.now.Add(time.Second)
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.True(t, ok)

	clk.now = clk.now.Add(time.Second)
	c.Put("k3", "v")
	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("k0")
	assert.False(t, ok, "oldest live entry is evicted")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("hello", 10), Key("hello", 10))
	assert.NotEqual(t, Key("hello", 10), Key("hello", 11))
	assert.NotEqual(t, Key("hello", 10), Key("hello!", 10))
	assert.Len(t, Key("hello", 0), 64)
}

func TestResponseCache_Clear(t *testing.T) {
	c := New(time.Minute, 0)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()
	assert.Zero(t, c.Len())
}
