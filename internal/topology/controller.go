package topology

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/KilluaDB/topology/internal/models"
)

const (
	DefaultInitialDepth = 3
	DefaultExpandDepth  = 1
)

// Fetcher returns the relationship tree around schema.table, materialized to
// the given depth.
type Fetcher interface {
	GetTableRelationships(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error)
}

type FetcherFunc func(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error)

func (f FetcherFunc) GetTableRelationships(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error) {
	return f(ctx, schema, table, depth)
}

type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateExpanding State = "expanding"
	StateFailed    State = "failed"
	StateClosed    State = "closed"
)

var transitions = map[State][]State{
	StateIdle:      {StateLoading},
	StateLoading:   {StateReady, StateFailed},
	StateFailed:    {StateLoading},
	StateReady:     {StateExpanding},
	StateExpanding: {StateExpanding, StateReady},
}

func canTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Options struct {
	InitialDepth int
	ExpandDepth  int
	Logger       *slog.Logger
}

// Snapshot is a read-only view of the controller state. Root is shared with
// the controller and must not be modified.
type Snapshot struct {
	State     State
	Focus     models.NodeKey
	Root      *models.RelationshipNode
	Expanded  []models.NodeKey
	Loading   []models.NodeKey
	Revision  uint64
	LastError *FetchError
}

// Controller owns one topology view: the relationship tree, the expanded and
// loading sets, and the view state machine
//
//	Idle -> Loading -> Ready <-> Expanding
//	           \-> Failed -> Loading
//
// Every change bumps a revision number. Diagram compiles are memoized per
// revision and a compile is only stored if the revision has not moved while
// it ran.
type Controller struct {
	fetcher Fetcher
	schema  string
	table   string
	opts    Options
	logger  *slog.Logger

	// lifetime is cancelled by Close and parents every fetch.
	lifetime context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	state      State
	root       *models.RelationshipNode
	expanded   KeySet
	loading    KeySet
	revision   uint64
	generation uint64
	lastErr    *FetchError

	diagram    models.DiagramIR
	diagramRev uint64
	hasDiagram bool
}

func NewController(fetcher Fetcher, schema, table string, opts Options) *Controller {
	if opts.InitialDepth <= 0 {
		opts.InitialDepth = DefaultInitialDepth
	}
	if opts.ExpandDepth <= 0 {
		opts.ExpandDepth = DefaultExpandDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lifetime, cancel := context.WithCancel(context.Background())

	return &Controller{
		fetcher:  fetcher,
		schema:   schema,
		table:    table,
		opts:     opts,
		logger:   logger.With("focus", string(models.NewNodeKey(schema, table))),
		lifetime: lifetime,
		cancel:   cancel,
		state:    StateIdle,
		expanded: NewKeySet(),
		loading:  NewKeySet(),
	}
}

func (c *Controller) Focus() models.NodeKey {
	return models.NewNodeKey(c.schema, c.table)
}

// Load runs the initial fetch. It is a no-op while a load is in flight or
// once the tree exists.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateLoading || c.root != nil {
		c.mu.Unlock()
		return nil
	}
	c.lastErr = nil
	c.setStateLocked(StateLoading)
	gen := c.generation
	c.mu.Unlock()

	node, err := c.fetch(ctx, c.schema, c.table, c.opts.InitialDepth)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("dropping initial load result for closed view")
		return ErrClosed
	}
	if err != nil {
		c.lastErr = &FetchError{Schema: c.schema, Table: c.table, Initial: true, Err: err}
		c.setStateLocked(StateFailed)
		c.logger.Warn("initial topology load failed", "error", err)
		return c.lastErr
	}

	c.root = node
	for k := range MaterializedKeys(node) {
		c.expanded.Add(k)
	}
	c.setStateLocked(StateReady)
	c.logger.Info("topology loaded", "relationships", len(node.Relationships), "depth", c.opts.InitialDepth)
	return nil
}

// RequestExpand fetches the relationships of key and splices them into the
// tree. started is false when a fetch for key is already in flight, in which
// case the call does nothing. A failed fetch leaves the node collapsed and
// returns a *FetchError. A target that has left the tree is dropped silently.
func (c *Controller) RequestExpand(ctx context.Context, key models.NodeKey, schema, table string) (started bool, err error) {
	c.mu.Lock()
	switch {
	case c.state == StateClosed:
		c.mu.Unlock()
		return false, ErrClosed
	case c.root == nil:
		c.mu.Unlock()
		return false, ErrNotLoaded
	case c.loading.Has(key):
		c.mu.Unlock()
		return false, nil
	}
	c.loading.Add(key)
	c.setStateLocked(StateExpanding)
	gen := c.generation
	c.mu.Unlock()

	node, fetchErr := c.fetch(ctx, schema, table, c.opts.ExpandDepth)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("dropping expansion result for closed view", "key", string(key))
		return true, ErrClosed
	}
	c.loading.Remove(key)
	defer c.settleLocked()

	if fetchErr != nil {
		c.lastErr = &FetchError{Key: key, Schema: schema, Table: table, Err: fetchErr}
		c.logger.Warn("node expansion failed", "key", string(key), "error", fetchErr)
		return true, c.lastErr
	}

	merged, err := Merge(c.root, key, node)
	if errors.Is(err, ErrStaleTarget) {
		c.logger.Debug("expansion target no longer in tree", "key", string(key))
		return true, nil
	}

	// A re-expanded node loses whatever was materialized below it, so the
	// expanded set is rebuilt from the tree rather than grown.
	c.root = merged
	c.expanded = MaterializedKeys(merged)
	c.expanded.Add(key)
	if c.lastErr != nil && !c.lastErr.Initial && c.lastErr.Key == key {
		c.lastErr = nil
	}
	c.logger.Debug("node expanded", "key", string(key), "relationships", len(node.Relationships))
	return true, nil
}

// Retry re-issues the last failed fetch, either the initial load or a single
// node expansion.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	failed := c.lastErr
	c.mu.Unlock()

	if failed == nil {
		return ErrNothingToRetry
	}
	if failed.Initial {
		return c.Load(ctx)
	}
	_, err := c.RequestExpand(ctx, failed.Key, failed.Schema, failed.Table)
	return err
}

// Diagram returns the compiled diagram for the current state and the
// revision it was compiled at.
func (c *Controller) Diagram() (models.DiagramIR, uint64) {
	c.mu.Lock()
	if c.hasDiagram && c.diagramRev == c.revision {
		ir, rev := c.diagram, c.diagramRev
		c.mu.Unlock()
		return ir, rev
	}
	rev := c.revision
	root := c.root
	expanded := c.expanded.Clone()
	loading := c.loading.Clone()
	c.mu.Unlock()

	ir := Compile(root, expanded, loading)

	c.mu.Lock()
	if c.revision == rev {
		c.diagram = ir
		c.diagramRev = rev
		c.hasDiagram = true
	}
	c.mu.Unlock()
	return ir, rev
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		State:     c.state,
		Focus:     c.Focus(),
		Root:      c.root,
		Expanded:  c.expanded.Sorted(),
		Loading:   c.loading.Sorted(),
		Revision:  c.revision,
		LastError: c.lastErr,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsLoading(key models.NodeKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading.Has(key)
}

// Close tears the view down. In-flight fetches are cancelled and any result
// that still arrives is ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.generation++
	c.setStateLocked(StateClosed)
	c.cancel()
}

func (c *Controller) fetch(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error) {
	fetchCtx, cancel := context.WithCancel(c.lifetime)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return c.fetcher.GetTableRelationships(fetchCtx, schema, table, depth)
}

// settleLocked leaves Expanding once the last in-flight expansion is done.
func (c *Controller) settleLocked() {
	if len(c.loading) == 0 {
		c.setStateLocked(StateReady)
		return
	}
	c.setStateLocked(StateExpanding)
}

// setStateLocked moves the state machine and bumps the revision. The revision
// moves even on a rejected transition since the caller has changed the sets.
func (c *Controller) setStateLocked(to State) {
	c.revision++
	if !canTransition(c.state, to) {
		c.logger.Error("invalid topology state transition", "from", string(c.state), "to", string(to))
		return
	}
	if c.state != to {
		c.logger.Debug("topology state change", "from", string(c.state), "to", string(to))
	}
	c.state = to
}
