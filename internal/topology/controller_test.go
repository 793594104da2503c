package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilluaDB/topology/internal/models"
)

const (
	ordersKey    = models.NodeKey("public.orders")
	customersKey = models.NodeKey("public.customers")
)

func loadedController(t *testing.T, f *fakeFetcher) *Controller {
	t.Helper()
	c := NewController(f, "public", "orders", Options{})
	t.Cleanup(c.Close)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestControllerLoad(t *testing.T) {
	f := newFakeFetcher(ordersNode())
	c := NewController(f, "public", "orders", Options{})
	defer c.Close()

	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Load(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, ordersKey, snap.Focus)
	assert.Len(t, snap.Root.Relationships, 2)
	assert.Empty(t, snap.Expanded)
	assert.Nil(t, snap.LastError)

	ir, _ := c.Diagram()
	assert.Len(t, tableNodes(ir), 3)
	assert.Len(t, fkEdges(ir), 2)

	// A second load is a no-op.
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 1, f.callCount(ordersKey))
}

func TestControllerLoadMarksMaterializedKeysExpanded(t *testing.T) {
	root := node("public.orders",
		withChildren(out("public.orders", "customer_id", "public.customers", "id", "fk_orders_customer"), customersNode()),
	)
	c := loadedController(t, newFakeFetcher(root))

	assert.Equal(t, []models.NodeKey{customersKey}, c.Snapshot().Expanded)

	ir, _ := c.Diagram()
	assert.Len(t, ir.Nodes, 3, "materialized children are drawn")
}

func TestControllerInitialLoadFailureAndRetry(t *testing.T) {
	f := newFakeFetcher(ordersNode())
	f.setErr(ordersKey, errors.New("network error"))

	c := NewController(f, "public", "orders", Options{})
	defer c.Close()

	err := c.Load(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Initial)

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Nil(t, snap.Root)
	require.NotNil(t, snap.LastError)

	ir, _ := c.Diagram()
	assert.Empty(t, ir.Nodes)

	f.setErr(ordersKey, nil)
	require.NoError(t, c.Retry(context.Background()))

	assert.Equal(t, StateReady, c.State())
	assert.Nil(t, c.Snapshot().LastError)
	assert.Equal(t, 2, f.callCount(ordersKey), "retry re-issues the same fetch")
}

func TestControllerExpand(t *testing.T) {
	f := newFakeFetcher(ordersNode(), customersNode())
	c := loadedController(t, f)
	_, revBefore := c.Diagram()

	started, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
	require.NoError(t, err)
	assert.True(t, started)

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []models.NodeKey{customersKey}, snap.Expanded)
	assert.Empty(t, snap.Loading)
	require.NotNil(t, snap.Root.Relationships[0].Children)

	ir, rev := c.Diagram()
	assert.Greater(t, rev, revBefore)
	assert.Len(t, tableNodes(ir), 4)
}

func TestControllerReexpandDropsStaleExpandedKeys(t *testing.T) {
	root := node("public.orders",
		withChildren(
			hasMore(out("public.orders", "customer_id", "public.customers", "id", "fk_orders_customer")),
			node("public.customers",
				hasMore(out("public.customers", "region_id", "public.regions", "id", "fk_customers_region")),
			),
		),
	)
	f := newFakeFetcher(root)
	c := loadedController(t, f)
	require.Equal(t, []models.NodeKey{customersKey}, c.Snapshot().Expanded)

	// The focus table comes back at depth 1, without customers' children.
	f.mu.Lock()
	f.nodes[ordersKey] = ordersNode()
	f.mu.Unlock()

	started, err := c.RequestExpand(context.Background(), ordersKey, "public", "orders")
	require.NoError(t, err)
	assert.True(t, started)

	snap := c.Snapshot()
	assert.Equal(t, []models.NodeKey{ordersKey}, snap.Expanded)
	for k := range NewKeySet(snap.Expanded...) {
		if k != ordersKey {
			assert.True(t, MaterializedKeys(snap.Root).Has(k), "%s is expanded but has no children", k)
		}
	}

	ir, _ := c.Diagram()
	assert.Contains(t, ir.Nodes, models.NodeSpec{
		ID:         ExpandNodeID(customersKey),
		Key:        customersKey,
		Label:      "+",
		Schema:     "public",
		Table:      "customers",
		Kind:       models.NodeKindExpand,
		Expandable: true,
	}, "customers can be expanded again")

	// And it can.
	f.mu.Lock()
	f.nodes[customersKey] = customersNode()
	f.mu.Unlock()
	started, err = c.RequestExpand(context.Background(), customersKey, "public", "customers")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []models.NodeKey{customersKey}, c.Snapshot().Expanded)
}

func TestControllerExpandIsIdempotentWhileInFlight(t *testing.T) {
	f := newFakeFetcher(ordersNode(), customersNode())
	c := loadedController(t, f)

	gate := make(chan struct{})
	f.setGate(gate)

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
		done <- err
	}()

	require.Eventually(t, func() bool { return c.IsLoading(customersKey) }, time.Second, 5*time.Millisecond)

	started, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
	require.NoError(t, err)
	assert.False(t, started)

	snap := c.Snapshot()
	assert.Equal(t, StateExpanding, snap.State)
	assert.Equal(t, []models.NodeKey{customersKey}, snap.Loading)

	ir, _ := c.Diagram()
	assert.True(t, ir.Nodes[1].Loading)

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, f.callCount(customersKey))
	assert.Equal(t, StateReady, c.State())
	assert.False(t, c.IsLoading(customersKey))
}

func TestControllerExpandFailureLeavesNodeCollapsed(t *testing.T) {
	f := newFakeFetcher(ordersNode(), customersNode())
	f.setErr(customersKey, errors.New("connection reset"))
	c := loadedController(t, f)

	started, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
	assert.True(t, started)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Initial)
	assert.Equal(t, customersKey, fe.Key)

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Expanded)
	assert.Empty(t, snap.Loading)
	assert.Nil(t, snap.Root.Relationships[0].Children)
	assert.NotNil(t, snap.LastError)

	f.setErr(customersKey, nil)
	require.NoError(t, c.Retry(context.Background()))

	snap = c.Snapshot()
	assert.Equal(t, []models.NodeKey{customersKey}, snap.Expanded)
	assert.Nil(t, snap.LastError)
}

func TestControllerStaleExpandIsSilent(t *testing.T) {
	f := newFakeFetcher(ordersNode(), node("public.ghost"))
	c := loadedController(t, f)

	started, err := c.RequestExpand(context.Background(), "public.ghost", "public", "ghost")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Empty(t, c.Snapshot().Expanded)
	assert.Equal(t, StateReady, c.State())
}

func TestControllerExpandBeforeLoad(t *testing.T) {
	c := NewController(newFakeFetcher(ordersNode()), "public", "orders", Options{})
	defer c.Close()

	_, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestControllerRetryWithoutFailure(t *testing.T) {
	c := loadedController(t, newFakeFetcher(ordersNode()))
	assert.ErrorIs(t, c.Retry(context.Background()), ErrNothingToRetry)
}

func TestControllerCloseDropsInFlightResult(t *testing.T) {
	f := newFakeFetcher(ordersNode(), customersNode())
	c := loadedController(t, f)

	f.setGate(make(chan struct{}))

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.IsLoading(customersKey) }, time.Second, 5*time.Millisecond)

	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("in-flight fetch was not cancelled")
	}

	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.Snapshot().Expanded)

	_, err := c.RequestExpand(context.Background(), customersKey, "public", "customers")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Load(context.Background()), ErrClosed)
}

func TestControllerCallerCancellation(t *testing.T) {
	f := newFakeFetcher(ordersNode(), customersNode())
	c := loadedController(t, f)
	f.setGate(make(chan struct{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.RequestExpand(ctx, customersKey, "public", "customers")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.IsLoading(customersKey) }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.IsLoading(customersKey))
	assert.Equal(t, StateReady, c.State())
}

func TestControllerDiagramMemoized(t *testing.T) {
	c := loadedController(t, newFakeFetcher(ordersNode()))

	ir1, rev1 := c.Diagram()
	ir2, rev2 := c.Diagram()
	assert.Equal(t, rev1, rev2)
	assert.Equal(t, ir1, ir2)
	assert.Equal(t, c.Snapshot().Revision, rev1)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateLoading))
	assert.True(t, canTransition(StateFailed, StateLoading))
	assert.True(t, canTransition(StateReady, StateClosed))
	assert.False(t, canTransition(StateIdle, StateReady))
	assert.False(t, canTransition(StateClosed, StateClosed))
	assert.False(t, canTransition(StateClosed, StateLoading))
}
