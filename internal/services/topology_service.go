package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/KilluaDB/topology/internal/models"
	"github.com/KilluaDB/topology/internal/render"
	"github.com/KilluaDB/topology/internal/topology"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("topology session not found")
	ErrUnknownNode     = errors.New("node is not expandable")
)

const (
	ErrorKindFetch  = "fetch"
	ErrorKindRender = "render"
)

type TopologyOptions struct {
	InitialDepth int
	ExpandDepth  int
	Logger       *slog.Logger
}

// ViewError is a failure the user can act on. Fetch failures retry the
// fetch; render failures re-render the tree already held by the session.
type ViewError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type TopologyView struct {
	SessionID uuid.UUID              `json:"session_id"`
	Focus     models.NodeKey         `json:"focus"`
	State     topology.State         `json:"state"`
	Revision  uint64                 `json:"revision"`
	Expanded  []models.NodeKey       `json:"expanded"`
	Loading   []models.NodeKey       `json:"loading"`
	Diagram   models.DiagramIR       `json:"diagram"`
	Mermaid   string                 `json:"mermaid,omitempty"`
	Viewport  topology.ViewportState `json:"viewport"`
	Error     *ViewError             `json:"error,omitempty"`
}

type topologySession struct {
	id         uuid.UUID
	controller *topology.Controller
	viewport   *topology.Viewport

	mu          sync.Mutex
	rendered    *render.Result
	renderErr   error
	renderedRev uint64
	hasRender   bool
}

// TopologyService keeps one in-memory session per open topology view.
type TopologyService struct {
	fetcher  topology.Fetcher
	renderer render.Renderer
	opts     TopologyOptions
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*topologySession
}

func NewTopologyService(fetcher topology.Fetcher, renderer render.Renderer, opts TopologyOptions) *TopologyService {
	if renderer == nil {
		renderer = render.NewMermaid()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TopologyService{
		fetcher:  fetcher,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		sessions: make(map[uuid.UUID]*topologySession),
	}
}

// Open creates a topology view for schema.table and runs the initial load. A
// failed load still returns the view, in the failed state with a fetch error.
func (s *TopologyService) Open(ctx context.Context, schema, table string) (*TopologyView, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if table == "" {
		return nil, ErrInvalidTable
	}

	sess := &topologySession{
		id: uuid.New(),
		controller: topology.NewController(s.fetcher, schema, table, topology.Options{
			InitialDepth: s.opts.InitialDepth,
			ExpandDepth:  s.opts.ExpandDepth,
			Logger:       s.logger,
		}),
		viewport: topology.NewViewport(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("topology view opened", "session", sess.id.String(), "focus", string(sess.controller.Focus()))

	if err := sess.controller.Load(ctx); err != nil && !isFetchError(err) {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *TopologyService) Get(id uuid.UUID) (*TopologyView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Close tears down a view. Pending fetches for it are cancelled.
func (s *TopologyService) Close(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.controller.Close()
	s.logger.Info("topology view closed", "session", id.String())
	return nil
}

// CloseAll tears down every open view.
func (s *TopologyService) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*topologySession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.controller.Close()
	}
}

// Expand requests expansion of key. started is false when an expansion of the
// same key is already running.
func (s *TopologyService) Expand(ctx context.Context, id uuid.UUID, key models.NodeKey) (*TopologyView, bool, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, false, err
	}

	schema, table := key.Split()
	if schema == "" {
		schema = DefaultSchema
		key = models.NewNodeKey(schema, table)
	}
	started, err := sess.controller.RequestExpand(ctx, key, schema, table)
	if err != nil && !isFetchError(err) {
		return nil, started, err
	}
	return s.view(sess), started, nil
}

// Click resolves a click on a diagram node through the session's click table
// and expands the node it stands for.
func (s *TopologyService) Click(ctx context.Context, id uuid.UUID, nodeID string) (*TopologyView, bool, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, false, err
	}

	s.view(sess)
	sess.mu.Lock()
	key, ok := sess.rendered.Lookup(nodeID)
	sess.mu.Unlock()
	if !ok {
		return nil, false, ErrUnknownNode
	}
	return s.Expand(ctx, id, key)
}

// Retry re-issues the last failed fetch of a view.
func (s *TopologyService) Retry(ctx context.Context, id uuid.UUID) (*TopologyView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := sess.controller.Retry(ctx); err != nil && !isFetchError(err) {
		return nil, err
	}
	return s.view(sess), nil
}

// RetryRender renders the already-fetched tree again without fetching.
func (s *TopologyService) RetryRender(id uuid.UUID) (*TopologyView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.hasRender = false
	sess.mu.Unlock()
	return s.view(sess), nil
}

func (s *TopologyService) Wheel(id uuid.UUID, deltaY float64) (topology.ViewportState, error) {
	sess, err := s.session(id)
	if err != nil {
		return topology.ViewportState{}, err
	}
	return sess.viewport.OnWheel(deltaY), nil
}

func (s *TopologyService) DragStart(id uuid.UUID, p topology.Point) (topology.ViewportState, error) {
	sess, err := s.session(id)
	if err != nil {
		return topology.ViewportState{}, err
	}
	return sess.viewport.OnDragStart(p), nil
}

func (s *TopologyService) DragMove(id uuid.UUID, p topology.Point) (topology.ViewportState, error) {
	sess, err := s.session(id)
	if err != nil {
		return topology.ViewportState{}, err
	}
	return sess.viewport.OnDragMove(p), nil
}

func (s *TopologyService) DragEnd(id uuid.UUID) (topology.ViewportState, error) {
	sess, err := s.session(id)
	if err != nil {
		return topology.ViewportState{}, err
	}
	return sess.viewport.OnDragEnd(), nil
}

func (s *TopologyService) ResetView(id uuid.UUID) (topology.ViewportState, error) {
	sess, err := s.session(id)
	if err != nil {
		return topology.ViewportState{}, err
	}
	return sess.viewport.Reset(), nil
}

func (s *TopologyService) session(id uuid.UUID) (*topologySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *TopologyService) view(sess *topologySession) *TopologyView {
	snap := sess.controller.Snapshot()
	ir, rev := sess.controller.Diagram()

	v := &TopologyView{
		SessionID: sess.id,
		Focus:     snap.Focus,
		State:     snap.State,
		Revision:  rev,
		Expanded:  snap.Expanded,
		Loading:   snap.Loading,
		Diagram:   ir,
		Viewport:  sess.viewport.State(),
	}

	if snap.Root != nil {
		result, err := s.render(sess, ir, rev)
		if result != nil {
			v.Mermaid = result.Source
		}
		if err != nil {
			v.Error = &ViewError{Kind: ErrorKindRender, Message: err.Error(), Retryable: true}
		}
	}
	if snap.LastError != nil {
		v.Error = &ViewError{Kind: ErrorKindFetch, Message: snap.LastError.Error(), Retryable: true}
	}
	return v
}

// render reuses the last render while the diagram revision is unchanged and
// never replaces a newer render with an older one.
func (s *TopologyService) render(sess *topologySession, ir models.DiagramIR, rev uint64) (*render.Result, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.hasRender && sess.renderedRev == rev {
		return sess.rendered, sess.renderErr
	}
	if sess.hasRender && sess.renderedRev > rev {
		return sess.rendered, sess.renderErr
	}

	result, err := s.renderer.Render(ir)
	if err != nil {
		s.logger.Error("diagram render failed", "session", sess.id.String(), "revision", rev, "error", err)
		result = nil
	}
	sess.rendered = result
	sess.renderErr = err
	sess.renderedRev = rev
	sess.hasRender = true
	return result, err
}

func isFetchError(err error) bool {
	var fe *topology.FetchError
	return errors.As(err, &fe)
}
