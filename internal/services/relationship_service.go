package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KilluaDB/topology/internal/models"
	"github.com/KilluaDB/topology/internal/repositories"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultSchema is used wherever a table is named without a schema.
const DefaultSchema = "public"

var (
	ErrTableNotFound = errors.New("table not found")
	ErrInvalidDepth  = errors.New("invalid depth")
	ErrInvalidTable  = errors.New("table name is required")
)

// RelationshipSource is the catalog access the fetcher needs.
// *repositories.SchemaRepository implements it.
type RelationshipSource interface {
	TableExists(ctx context.Context, schema, table string) (bool, error)
	GetOutgoingForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error)
	GetIncomingForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error)
	CountRelationships(ctx context.Context, schema, table string) (int, error)
}

// RelationshipService fetches bounded-depth foreign key trees around a table.
type RelationshipService struct {
	source   RelationshipSource
	cache    repositories.RelationshipCache
	maxDepth int
	logger   *slog.Logger
	group    singleflight.Group
}

func NewRelationshipService(source RelationshipSource, cache repositories.RelationshipCache, maxDepth int, logger *slog.Logger) *RelationshipService {
	if cache == nil {
		cache = repositories.NoopRelationshipCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationshipService{
		source:   source,
		cache:    cache,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

func (s *RelationshipService) MaxDepth() int {
	return s.maxDepth
}

// GetTableRelationships returns the relationship tree of schema.table with
// depth levels of nodes materialized. Far-side tables past the last level
// have HasMore set when they have relationships not already shown.
func (s *RelationshipService) GetTableRelationships(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if table == "" {
		return nil, ErrInvalidTable
	}
	if depth < 1 || depth > s.maxDepth {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidDepth, depth, s.maxDepth)
	}

	key := models.NewNodeKey(schema, table)
	if cached, ok, err := s.cache.Get(ctx, key, depth); err != nil {
		s.logger.Warn("relationship cache read failed", "key", string(key), "error", err)
	} else if ok {
		return cached, nil
	}

	v, err, shared := s.group.Do(fmt.Sprintf("%s:%d", key, depth), func() (any, error) {
		return s.build(ctx, schema, table, depth)
	})
	// A shared call cancelled by another caller's context says nothing about
	// ours.
	if shared && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		v, err = s.build(ctx, schema, table, depth)
	}
	if err != nil {
		return nil, err
	}

	node := v.(*models.RelationshipNode)
	if err := s.cache.Set(ctx, key, depth, node); err != nil {
		s.logger.Warn("relationship cache write failed", "key", string(key), "error", err)
	}
	return node.Clone(), nil
}

type pending struct {
	node  *models.RelationshipNode
	level int
}

func (s *RelationshipService) build(ctx context.Context, schema, table string, depth int) (*models.RelationshipNode, error) {
	exists, err := s.source.TableExists(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, models.NewNodeKey(schema, table))
	}

	root := models.NewRelationshipNode(schema, table)
	materialized := map[models.NodeKey]bool{root.Table: true}
	counts := make(map[models.NodeKey]int)
	queue := []pending{{node: root, level: 1}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		rels, err := s.relationshipsOf(ctx, item.node.Schema, item.node.Name)
		if err != nil {
			return nil, err
		}
		item.node.Relationships = rels

		links := make(map[models.NodeKey]int)
		for i := range rels {
			links[rels[i].FarKey()]++
		}

		for i := range item.node.Relationships {
			rel := &item.node.Relationships[i]
			far := rel.FarKey()
			if materialized[far] {
				continue
			}

			farSchema, farTable := rel.FarSide()
			if item.level < depth {
				materialized[far] = true
				child := models.NewRelationshipNode(farSchema, farTable)
				rel.Children = child
				queue = append(queue, pending{node: child, level: item.level + 1})
				continue
			}

			count, ok := counts[far]
			if !ok {
				count, err = s.source.CountRelationships(ctx, farSchema, farTable)
				if err != nil {
					return nil, err
				}
				counts[far] = count
			}
			rel.HasMore = count > links[far]
		}
	}

	s.logger.Debug("relationships fetched", "key", string(root.Table), "depth", depth, "nodes", len(materialized))
	return root, nil
}

// relationshipsOf reads both directions concurrently. Outgoing keys come
// first; duplicates of the same constraint in the same direction are dropped.
func (s *RelationshipService) relationshipsOf(ctx context.Context, schema, table string) ([]models.Relationship, error) {
	var outgoing, incoming []models.ForeignKey

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fks, err := s.source.GetOutgoingForeignKeys(gctx, schema, table)
		if err != nil {
			return fmt.Errorf("failed to get outgoing foreign keys for %s.%s: %w", schema, table, err)
		}
		outgoing = fks
		return nil
	})
	g.Go(func() error {
		fks, err := s.source.GetIncomingForeignKeys(gctx, schema, table)
		if err != nil {
			return fmt.Errorf("failed to get incoming foreign keys for %s.%s: %w", schema, table, err)
		}
		incoming = fks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rels := make([]models.Relationship, 0, len(outgoing)+len(incoming))
	seen := make(map[string]bool)
	add := func(dir models.Direction, fk models.ForeignKey) {
		// Constraint names are only unique per table, so the source table
		// is part of the identity.
		id := fmt.Sprintf("%s|%s.%s|%s", dir, fk.FromSchema, fk.FromTable, fk.ConstraintName)
		if seen[id] {
			return
		}
		seen[id] = true
		rels = append(rels, relationshipFromForeignKey(dir, fk))
	}
	for _, fk := range outgoing {
		add(models.DirectionOutgoing, fk)
	}
	for _, fk := range incoming {
		add(models.DirectionIncoming, fk)
	}
	return rels, nil
}

func relationshipFromForeignKey(dir models.Direction, fk models.ForeignKey) models.Relationship {
	return models.Relationship{
		Direction:      dir,
		ConstraintName: fk.ConstraintName,
		SourceSchema:   fk.FromSchema,
		SourceTable:    fk.FromTable,
		SourceColumn:   fk.FromColumn,
		TargetSchema:   fk.ToSchema,
		TargetTable:    fk.ToTable,
		TargetColumn:   fk.ToColumn,
	}
}
