package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/KilluaDB/topology/internal/config"
	"github.com/KilluaDB/topology/internal/database"
	"github.com/KilluaDB/topology/internal/handlers"
	"github.com/KilluaDB/topology/internal/middlewares"
	"github.com/KilluaDB/topology/internal/render"
	"github.com/KilluaDB/topology/internal/repositories"
	"github.com/KilluaDB/topology/internal/routes"
	"github.com/KilluaDB/topology/internal/services"
)

type Server struct {
	*http.Server

	pool     *pgxpool.Pool
	rdb      *redis.Client
	topology *services.TopologyService
	logger   *slog.Logger
}

func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var cache repositories.RelationshipCache = repositories.NoopRelationshipCache{}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		// Fail fast with a clear message
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("connected to Redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL.String())
		cache = repositories.NewRedisRelationshipCache(rdb, cfg.CacheTTL)
	}

	// Dependency injection
	schemaRepo := repositories.NewSchemaRepository(pool)
	relationshipService := services.NewRelationshipService(schemaRepo, cache, cfg.Topology.MaxDepth, logger)
	schemaService := services.NewSchemaService(schemaRepo)
	topologyService := services.NewTopologyService(relationshipService, render.NewMermaid(), services.TopologyOptions{
		InitialDepth: cfg.Topology.InitialDepth,
		ExpandDepth:  cfg.Topology.ExpandDepth,
		Logger:       logger,
	})

	relationshipHandler := handlers.NewRelationshipHandler(relationshipService, cfg.Topology.FetchTimeout, logger)
	schemaHandler := handlers.NewSchemaHandler(schemaService, logger)
	topologyHandler := handlers.NewTopologyHandler(topologyService, cfg.Topology.FetchTimeout, logger)

	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	var guards []gin.HandlerFunc
	if cfg.AuthEnabled() {
		guards = append(guards, middlewares.Authenticate(cfg.AccessTokenSecret))
	} else {
		logger.Warn("ACCESS_TOKEN_SECRET not set, API is unauthenticated")
	}
	routes.RegisterRoutes(router, relationshipHandler, schemaHandler, topologyHandler, guards...)

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: cfg.Topology.FetchTimeout + 10*time.Second,
		},
		pool:     pool,
		rdb:      rdb,
		topology: topologyService,
		logger:   logger,
	}, nil
}

// Shutdown stops accepting requests, closes every open topology view and
// releases the database and Redis connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)

	s.topology.CloseAll()
	if s.rdb != nil {
		if cerr := s.rdb.Close(); cerr != nil {
			s.logger.Warn("failed to close Redis client", "error", cerr)
		}
	}
	s.pool.Close()
	s.logger.Info("database connection pool closed")
	return err
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
