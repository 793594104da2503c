package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/KilluaDB/topology/internal/models"
)

func fk(constraint, from, fromColumn, to, toColumn string) models.ForeignKey {
	fs, ft := models.NodeKey(from).Split()
	ts, tt := models.NodeKey(to).Split()
	return models.ForeignKey{
		ConstraintName: constraint,
		FromSchema:     fs,
		FromTable:      ft,
		FromColumn:     fromColumn,
		ToSchema:       ts,
		ToTable:        tt,
		ToColumn:       toColumn,
	}
}

// fakeSource serves foreign keys from an in-memory list.
type fakeSource struct {
	mu     sync.Mutex
	tables map[models.NodeKey]bool
	fks    []models.ForeignKey
	err    error
	reads  int
}

func newFakeSource(fks ...models.ForeignKey) *fakeSource {
	s := &fakeSource{tables: make(map[models.NodeKey]bool), fks: fks}
	for _, f := range fks {
		s.tables[models.NewNodeKey(f.FromSchema, f.FromTable)] = true
		s.tables[models.NewNodeKey(f.ToSchema, f.ToTable)] = true
	}
	return s
}

// shopSource is orders -> customers -> regions and orders -> products.
func shopSource() *fakeSource {
	return newFakeSource(
		fk("fk_orders_customer", "public.orders", "customer_id", "public.customers", "id"),
		fk("fk_orders_product", "public.orders", "product_id", "public.products", "id"),
		fk("fk_customers_region", "public.customers", "region_id", "public.regions", "id"),
	)
}

func (s *fakeSource) TableExists(_ context.Context, schema, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.tables[models.NewNodeKey(schema, table)], nil
}

func (s *fakeSource) GetOutgoingForeignKeys(_ context.Context, schema, table string) ([]models.ForeignKey, error) {
	return s.match(func(f models.ForeignKey) bool { return f.FromSchema == schema && f.FromTable == table })
}

func (s *fakeSource) GetIncomingForeignKeys(_ context.Context, schema, table string) ([]models.ForeignKey, error) {
	return s.match(func(f models.ForeignKey) bool { return f.ToSchema == schema && f.ToTable == table })
}

func (s *fakeSource) CountRelationships(_ context.Context, schema, table string) (int, error) {
	fks, err := s.match(func(f models.ForeignKey) bool {
		return (f.FromSchema == schema && f.FromTable == table) || (f.ToSchema == schema && f.ToTable == table)
	})
	return len(fks), err
}

func (s *fakeSource) match(keep func(models.ForeignKey) bool) ([]models.ForeignKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.ForeignKey
	for _, f := range s.fks {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*models.RelationshipNode
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]*models.RelationshipNode)}
}

func cacheKey(key models.NodeKey, depth int) string {
	return fmt.Sprintf("%s@%d", key, depth)
}

func (c *memoryCache) Get(_ context.Context, key models.NodeKey, depth int) (*models.RelationshipNode, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[cacheKey(key, depth)]
	return n.Clone(), ok, nil
}

func (c *memoryCache) Set(_ context.Context, key models.NodeKey, depth int, node *models.RelationshipNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[cacheKey(key, depth)] = node.Clone()
	return nil
}

// gatedSource holds every TableExists call until release is closed or the
// caller's context ends.
type gatedSource struct {
	*fakeSource
	release  chan struct{}
	exists   atomic.Int32
	outgoing atomic.Int32
}

func newGatedSource() *gatedSource {
	return &gatedSource{fakeSource: shopSource(), release: make(chan struct{})}
}

func (s *gatedSource) TableExists(ctx context.Context, schema, table string) (bool, error) {
	s.exists.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return s.fakeSource.TableExists(ctx, schema, table)
}

func (s *gatedSource) GetOutgoingForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	s.outgoing.Add(1)
	return s.fakeSource.GetOutgoingForeignKeys(ctx, schema, table)
}

// missCache never hits and counts lookups, so a test can tell when a caller
// has got past the cache.
type missCache struct {
	gets atomic.Int32
}

func (c *missCache) Get(context.Context, models.NodeKey, int) (*models.RelationshipNode, bool, error) {
	c.gets.Add(1)
	return nil, false, nil
}

func (c *missCache) Set(context.Context, models.NodeKey, int, *models.RelationshipNode) error {
	return nil
}
