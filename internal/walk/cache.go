package walk

import (
	"sync"

	"github.com/macho-tools/machoscan/internal/model"
)

// Cache maps canonical node keys to Nodes and guarantees each key is created
// exactly once. Get-or-create is atomic: under a concurrent walk the first
// creator wins and owns that node's expansion, later requesters reuse the
// node as-is. It also remembers insertion order so reports are deterministic.
type Cache struct {
	mu    sync.Mutex
	nodes map[string]*model.Node
	order []*model.Node
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{nodes: make(map[string]*model.Node)}
}

// GetOrCreate returns the node for key, calling init to build it if the key
// is new. created reports whether this call created the node; only the
// creating caller may expand it.
func (c *Cache) GetOrCreate(key string, init func() *model.Node) (node *model.Node, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.nodes[key]; ok {
		return node, false
	}
	node = init()
	c.nodes[key] = node
	c.order = append(c.order, node)
	return node, true
}

// Get returns the node for key if present.
func (c *Cache) Get(key string) (*model.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[key]
	return node, ok
}

// Nodes returns every cached node in insertion order.
func (c *Cache) Nodes() []*model.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Node, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of cached nodes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
