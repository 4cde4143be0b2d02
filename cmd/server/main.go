// Package main provides the climeval regridding HTTP server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/config"
	"go.ngs.io/climeval/internal/gridspec"
	httpHandler "go.ngs.io/climeval/internal/http"
	"go.ngs.io/climeval/internal/metrics"
	"go.ngs.io/climeval/internal/regrid"
	"go.ngs.io/climeval/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", os.Getenv("CLIMEVAL_CONFIG"), "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("climeval-server version %s\n", version)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	port := getEnv("PORT", "8080")

	logger.Info("Starting climeval server...")
	logger.Info("Configuration", "port", port)
	logger.Info("Configuration", "areas_dir", cfg.AreasDir)
	logger.Info("Configuration", "weights_dir", cfg.WeightsDir)
	logger.Info("Configuration", "cdo", cfg.CDOBinary, "options", cfg.CDOOptions)
	logger.Info("Configuration", "default_method", cfg.DefaultMethod, "extrapolate", cfg.Extrapolate, "rebuild", cfg.Rebuild)

	// Grid registry (optional).
	var registry *gridspec.Registry
	if cfg.GridsFile != "" {
		registry, err = gridspec.LoadRegistry(cfg.GridsFile)
		if err != nil {
			logger.Error("Failed to load grid registry", "path", cfg.GridsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Grid registry loaded", "path", cfg.GridsFile, "grids", len(registry.Names()))
	} else {
		logger.Info("Grid registry disabled (only generator grid names and explicit paths accepted)")
	}

	// Metrics.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	// Managers and use case.
	gen := cdo.NewGenerator(cdo.ExecRunner{}, cfg.CDO(), logger)
	opts := cfg.Regrid()
	regridUC := usecase.NewRegridUseCase(
		registry,
		regrid.NewAreaManager(gen, opts, m, logger),
		regrid.NewWeightManager(gen, opts, m, logger),
		opts,
		logger,
	)

	// Setup router.
	router := httpHandler.SetupRouter(regridUC, promReg)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	logger.Info("Server listening", "addr", addr)
	logger.Info("Health check", "url", fmt.Sprintf("http://localhost:%s/health", port))
	logger.Info("API endpoints",
		"normalize", "POST /v1/grids/normalize",
		"prepare", "POST /v1/regrid/prepare",
		"formula", "POST /v1/formula/evaluate",
		"metrics", "GET /metrics",
	)

	if err := router.Run(addr); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("climeval server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  climeval-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -config PATH   YAML configuration file (default: $CLIMEVAL_CONFIG)")
	fmt.Println("  -debug         Enable debug logging")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                          Server port (default: 8080)")
	fmt.Println("  CORS_ALLOWED_ORIGINS          Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  CLIMEVAL_AREAS_DIR            Area file cache (default: ./data/areas)")
	fmt.Println("  CLIMEVAL_WEIGHTS_DIR          Weights file cache (default: ./data/weights)")
	fmt.Println("  CLIMEVAL_TMP_DIR              Scratch directory for sample files")
	fmt.Println("  CLIMEVAL_GRID_DOWNLOAD_DIR    CDO grid download cache (CDO_DOWNLOAD_PATH)")
	fmt.Println("  CLIMEVAL_ICON_GRIDS_DIR       CDO ICON grid cache (CDO_ICON_GRIDS)")
	fmt.Println("  CLIMEVAL_CDO                  cdo binary (default: cdo)")
	fmt.Println("  CLIMEVAL_GRIDS_FILE           Grid registry YAML")
	fmt.Println("  CLIMEVAL_REBUILD              Regenerate cached files (true/false)")
	fmt.Println("  CLIMEVAL_EXTRAPOLATE          Extrapolate when generating weights (true/false)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                  Health check")
	fmt.Println("  POST /v1/grids/normalize      Resolve a grid name or definition")
	fmt.Println("  POST /v1/regrid/prepare       Create area and weight files")
	fmt.Println("  POST /v1/formula/evaluate     Evaluate a variable formula")
	fmt.Println("  GET  /metrics                 Prometheus metrics")
	fmt.Println()
}
