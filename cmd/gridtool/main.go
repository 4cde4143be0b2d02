// Command gridtool normalizes grids, prepares area and weight files and
// evaluates variable formulas from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/config"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
	"go.ngs.io/climeval/internal/metrics"
	"go.ngs.io/climeval/internal/regrid"
	"go.ngs.io/climeval/internal/usecase"
)

var (
	configPath string
	verbose    bool
	zoom       int
)

var rootCmd = &cobra.Command{
	Use:           "gridtool",
	Short:         "Grid normalization and regrid preparation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CLIMEVAL_CONFIG"), "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().IntVar(&zoom, "zoom", -1, "zoom level for hierarchical grids (0-9)")

	rootCmd.AddCommand(normalizeCmd(), prepareCmd(), evalCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gridtool: %v\n", err)
		os.Exit(1)
	}
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize GRID",
		Short: "Resolve a grid name against the registry and validate its paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := newUseCase()
			if err != nil {
				return err
			}
			resp, err := uc.Normalize(domain.GridByName(args[0]), zoomFlag())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func prepareCmd() *cobra.Command {
	var req usecase.PrepareRequest
	var sourceGrid, targetGrid string
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create missing area and weight files for a data source",
		Long: `prepare resolves the source and target grids, then makes sure the
target area file, the source area files and the interpolation weights exist,
generating them with cdo when needed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc, err := newUseCase()
			if err != nil {
				return err
			}
			if sourceGrid != "" {
				req.SourceGrid = domain.GridByName(sourceGrid)
			}
			req.TargetGrid = domain.GridByName(targetGrid)
			req.Zoom = zoomFlag()
			resp, err := uc.Prepare(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Model, "model", "", "model name")
	f.StringVar(&req.Exp, "exp", "", "experiment name")
	f.StringVar(&req.Source, "source", "", "data source name")
	f.StringVar(&sourceGrid, "source-grid", "", "source grid name (registry entry or cdo grid)")
	f.StringVar(&targetGrid, "target", "", "target grid name")
	f.StringVar(&req.Method, "method", "", "interpolation method (default from config)")
	f.StringArrayVar(&req.Extra, "extra", nil, "extra cdo pre-processing operator, repeatable (e.g. -setctomiss,0)")
	f.StringVar(&req.SamplePath, "sample", "", "NetCDF data sample for grids without a registered file")
	f.StringVar(&req.TargetSamplePath, "target-sample", "", "NetCDF data on the target grid, for target area coordinates")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("exp")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func evalCmd() *cobra.Command {
	var samplePath string
	cmd := &cobra.Command{
		Use:   "eval EXPRESSION",
		Short: "Evaluate a formula over the variables of a NetCDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := usecase.EvaluateFormula(usecase.FormulaRequest{Expression: args[0], SamplePath: samplePath})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&samplePath, "file", "", "NetCDF file with the input variables")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUseCase() (*usecase.RegridUseCase, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	var registry *gridspec.Registry
	if cfg.GridsFile != "" {
		if registry, err = gridspec.LoadRegistry(cfg.GridsFile); err != nil {
			return nil, err
		}
	}

	gen := cdo.NewGenerator(cdo.ExecRunner{}, cfg.CDO(), logger)
	opts := cfg.Regrid()
	m := metrics.New(nil)
	return usecase.NewRegridUseCase(
		registry,
		regrid.NewAreaManager(gen, opts, m, logger),
		regrid.NewWeightManager(gen, opts, m, logger),
		opts,
		logger,
	), nil
}

func zoomFlag() *int {
	if zoom < 0 {
		return nil
	}
	z := zoom
	return &z
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
