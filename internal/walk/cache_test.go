package walk

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macho-tools/machoscan/internal/model"
)

func TestCacheGetOrCreate(t *testing.T) {
	t.Parallel()
	c := NewCache()

	first, created := c.GetOrCreate("a", func() *model.Node {
		return &model.Node{Path: "a"}
	})
	require.True(t, created)

	second, created := c.GetOrCreate("a", func() *model.Node {
		t.Fatal("init must not run on a cache hit")
		return nil
	})
	require.False(t, created)
	require.Same(t, first, second)

	got, ok := c.Get("a")
	require.True(t, ok)
	require.Same(t, first, got)

	_, ok = c.Get("b")
	require.False(t, ok)
}

func TestCacheNodesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	c := NewCache()
	for _, key := range []string{"z", "a", "m"} {
		key := key
		c.GetOrCreate(key, func() *model.Node { return &model.Node{Path: key} })
	}

	nodes := c.Nodes()
	require.Equal(t, 3, c.Len())
	require.Equal(t, "z", nodes[0].Path)
	require.Equal(t, "a", nodes[1].Path)
	require.Equal(t, "m", nodes[2].Path)
}

func TestCacheConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()
	c := NewCache()

	var inits sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("k%d", i%4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCreate(key, func() *model.Node {
				count, _ := inits.LoadOrStore(key, new(int))
				*count.(*int)++
				return &model.Node{Path: key}
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 4, c.Len())
	inits.Range(func(_, v any) bool {
		require.Equal(t, 1, *v.(*int))
		return true
	})
}
