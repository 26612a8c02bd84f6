package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifierSet(t *testing.T) {
	s := NewIdentifierSet("b", "a", "", "a")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Slice())
	assert.True(t, s.Equal([]string{"b", "a", "a"}))
	assert.False(t, s.Equal([]string{"a"}))
	assert.False(t, s.Equal([]string{"a", "c"}))

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, []string{"b"}, s.Slice())

	s.Replace([]string{"x"})
	assert.Equal(t, []string{"x"}, s.Slice())

	s.Replace(nil)
	assert.Zero(t, s.Len())
	assert.True(t, s.Equal(nil))
}

func TestIdentifierSetConcurrentAccess(t *testing.T) {
	s := NewIdentifierSet()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Replace([]string{"a", "b"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Slice()
				_ = s.Equal([]string{"a"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"a", "b"}, s.Slice())
}
