package topology

import (
	"context"
	"errors"
	"sync"

	"github.com/KilluaDB/topology/internal/models"
)

func rel(dir models.Direction, source, sourceColumn, target, targetColumn, constraint string) models.Relationship {
	ss, st := models.NodeKey(source).Split()
	ts, tt := models.NodeKey(target).Split()
	return models.Relationship{
		Direction:      dir,
		ConstraintName: constraint,
		SourceSchema:   ss,
		SourceTable:    st,
		SourceColumn:   sourceColumn,
		TargetSchema:   ts,
		TargetTable:    tt,
		TargetColumn:   targetColumn,
	}
}

func out(source, sourceColumn, target, targetColumn, constraint string) models.Relationship {
	return rel(models.DirectionOutgoing, source, sourceColumn, target, targetColumn, constraint)
}

func in(source, sourceColumn, target, targetColumn, constraint string) models.Relationship {
	return rel(models.DirectionIncoming, source, sourceColumn, target, targetColumn, constraint)
}

func hasMore(r models.Relationship) models.Relationship {
	r.HasMore = true
	return r
}

func withChildren(r models.Relationship, child *models.RelationshipNode) models.Relationship {
	r.Children = child
	return r
}

func node(key string, rels ...models.Relationship) *models.RelationshipNode {
	schema, table := models.NodeKey(key).Split()
	n := models.NewRelationshipNode(schema, table)
	n.Relationships = append(n.Relationships, rels...)
	return n
}

// ordersNode is public.orders as fetched at the initial depth: customers has
// more to show, products does not.
func ordersNode() *models.RelationshipNode {
	return node("public.orders",
		hasMore(out("public.orders", "customer_id", "public.customers", "id", "fk_orders_customer")),
		out("public.orders", "product_id", "public.products", "id", "fk_orders_product"),
	)
}

func customersNode() *models.RelationshipNode {
	return node("public.customers",
		out("public.customers", "region_id", "public.regions", "id", "fk_customers_region"),
	)
}

type fakeFetcher struct {
	mu    sync.Mutex
	nodes map[models.NodeKey]*models.RelationshipNode
	errs  map[models.NodeKey]error
	calls map[models.NodeKey]int
	gate  chan struct{}
}

func newFakeFetcher(nodes ...*models.RelationshipNode) *fakeFetcher {
	f := &fakeFetcher{
		nodes: make(map[models.NodeKey]*models.RelationshipNode),
		errs:  make(map[models.NodeKey]error),
		calls: make(map[models.NodeKey]int),
	}
	for _, n := range nodes {
		f.nodes[n.Table] = n
	}
	return f
}

func (f *fakeFetcher) GetTableRelationships(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error) {
	key := models.NewNodeKey(schema, table)

	f.mu.Lock()
	f.calls[key]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	n, ok := f.nodes[key]
	if !ok {
		return nil, errors.New("table not found")
	}
	return n.Clone(), nil
}

func (f *fakeFetcher) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeFetcher) setErr(key models.NodeKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, key)
		return
	}
	f.errs[key] = err
}

func (f *fakeFetcher) callCount(key models.NodeKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func tableNodes(ir models.DiagramIR) []models.NodeSpec {
	var nodes []models.NodeSpec
	for _, n := range ir.Nodes {
		if n.Kind != models.NodeKindExpand {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func fkEdges(ir models.DiagramIR) []models.EdgeSpec {
	var edges []models.EdgeSpec
	for _, e := range ir.Edges {
		if e.Style != models.EdgeStyleExpand {
			edges = append(edges, e)
		}
	}
	return edges
}
