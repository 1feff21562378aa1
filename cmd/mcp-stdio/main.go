// Command mcp-stdio serves the execute_manim_code tool over stdin/stdout so
// MCP clients can launch the renderer as a subprocess.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/bootstrap"
	"github.com/Harsh-BH/manim-sentinel/internal/config"
	rendermcp "github.com/Harsh-BH/manim-sentinel/internal/delivery/mcp"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	// zap's production config writes to stderr, leaving stdout to the protocol.
	logger, err := bootstrap.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build render pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	server := rendermcp.NewServer(pipeline.Render, version, logger)

	logger.Info("Serving MCP over stdio", zap.String("tool", rendermcp.ToolName))
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("MCP server stopped with error", zap.Error(err))
	}
}
