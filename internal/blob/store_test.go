package blob

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateOpen(t *testing.T) {
	s := NewStore()
	data := []byte("segment bytes")

	ref := s.Create(data, "audio/mpeg")
	assert.True(t, IsRef(ref))
	assert.Equal(t, 1, s.Len())

	b, err := s.Open(ref)
	require.NoError(t, err)
	assert.Equal(t, data, b.Data)
	assert.Equal(t, "audio/mpeg", b.ContentType)
}

func TestStore_CreateCopiesData(t *testing.T) {
	s := NewStore()
	data := []byte("abc")

	ref := s.Create(data, "audio/wav")
	data[0] = 'x'

	b, err := s.Open(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b.Data)
}

func TestStore_UniqueRefs(t *testing.T) {
	s := NewStore()
	a := s.Create([]byte("a"), "audio/mpeg")
	b := s.Create([]byte("a"), "audio/mpeg")
	assert.NotEqual(t, a, b)
}

func TestStore_Revoke(t *testing.T) {
	s := NewStore()
	ref := s.Create([]byte("a"), "audio/mpeg")

	assert.True(t, s.Revoke(ref))
	assert.False(t, s.Revoke(ref))
	assert.Equal(t, 0, s.Len())

	_, err := s.Open(ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_OpenUnknown(t *testing.T) {
	s := NewStore()
	_, err := s.Open("blob:nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	refs := make(chan string, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs <- s.Create([]byte("x"), "audio/mpeg")
		}()
	}
	wg.Wait()
	close(refs)

	assert.Equal(t, 100, s.Len())
	for ref := range refs {
		s.Revoke(ref)
	}
	assert.Equal(t, 0, s.Len())
}
