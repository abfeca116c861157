package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ironsheep/change-detect-mcp/internal/config"
	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/jobs"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
	"github.com/ironsheep/change-detect-mcp/internal/server"
	"github.com/ironsheep/change-detect-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("change-detect-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Raster backend: %s\n", raster.Backend)
			return
		case "--help", "-h", "help":
			fmt.Println("change-detect-mcp - MCP server for land-cover change detection")
			fmt.Println()
			fmt.Println("Usage: change-detect-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  CHANGE_MCP_CONFIG=path.yaml    Configuration file")
			fmt.Println("  CHANGE_MCP_LOG_LEVEL=debug     Log level (debug, info, warn, error)")
			fmt.Println("  CHANGE_MCP_DB_PATH=path.db     Result database; empty disables persistence")
			fmt.Println("  CHANGE_MCP_WORKERS=4           Concurrent detections; 0 sizes from the host")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "change-detect-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	// Logs go to stderr (stdout is for MCP protocol)
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	logger.Debug("starting change-detect-mcp",
		"version", Version, "build_time", BuildTime, "commit", GitCommit, "backend", raster.Backend)

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	det := detection.New(cfg.Detection, detection.WithLogger(logger))
	runner := jobs.New(det, st, cfg.Jobs, logger)
	defer runner.Close()

	srv := server.New(*cfg, det, runner, logger, Version)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
