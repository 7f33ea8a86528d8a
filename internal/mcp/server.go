package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/memtrace/internal/pathutil"
	"github.com/nvandessel/memtrace/internal/ratelimit"
	"github.com/nvandessel/memtrace/internal/store"
)

// Server wraps the MCP SDK server and exposes trace generation as tools.
type Server struct {
	server       *sdk.Server
	store        *store.SQLiteTraceStore
	root         string
	traceDirs    []string
	audit        *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "memtrace")
	Version string // Server version
	Root    string // Project root directory
	Logger  *slog.Logger
}

// NewServer creates a new MCP server with memtrace tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbPath, err := store.DefaultDBPath(cfg.Root)
	if err != nil {
		return nil, err
	}
	traceStore, err := store.NewSQLiteTraceStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}

	traceDirs, err := pathutil.DefaultTraceDirs(cfg.Root)
	if err != nil {
		traceStore.Close()
		return nil, err
	}

	auditDir := store.LocalMemtracePath(cfg.Root)
	if cfg.Root == "" {
		if auditDir, err = store.GlobalMemtracePath(); err != nil {
			traceStore.Close()
			return nil, err
		}
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        traceStore,
		root:         cfg.Root,
		traceDirs:    traceDirs,
		audit:        NewAuditLogger(auditDir, logger),
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.audit.Close()
	return s.store.Close()
}
