package cdo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.ngs.io/climeval/internal/domain"
)

// Environment variables understood by CDO.
const (
	EnvDownloadPath = "CDO_DOWNLOAD_PATH"
	EnvIconGrids    = "CDO_ICON_GRIDS"
	EnvExtrapolate  = "REMAP_EXTRAPOLATE"
)

// DefaultMethod is first-order conservative remapping.
const DefaultMethod = "ycon"

var tracer = otel.Tracer("go.ngs.io/climeval/internal/adapter/cdo")

// Options configure every invocation of the generator.
type Options struct {
	Binary       string   // Defaults to "cdo".
	GlobalFlags  []string // E.g., "--force", "-P", "4".
	DownloadDir  string   // Grid download cache.
	IconGridsDir string   // Hierarchical/ICON grid cache.
	Extrapolate  bool
}

// Generator builds and runs CDO command lines.
type Generator struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// NewGenerator creates a generator. A nil logger uses slog.Default().
func NewGenerator(runner Runner, opts Options, logger *slog.Logger) *Generator {
	if opts.Binary == "" {
		opts.Binary = "cdo"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{runner: runner, opts: opts, logger: logger}
}

// WeightsRequest describes one weight generation.
type WeightsRequest struct {
	Source string   // Source grid file (data sample or grid description).
	Target string   // Target grid name or file.
	Method string   // Interpolation method, e.g. "ycon", "bil", "dis".
	Extra  []string // Pre-processing operators, applied in order.
	Output string
}

// ConstField is the input operator producing a constant field on grid.
func ConstField(grid string) string {
	return "-const,1," + grid
}

// GridArea computes cell areas of input into output.
func (g *Generator) GridArea(ctx context.Context, input string, extra []string, output string) error {
	args := g.baseArgs()
	args = append(args, "gridarea")
	args = append(args, FlattenExtra(extra)...)
	args = append(args, input, output)
	return g.run(ctx, "gridarea", args, output)
}

// Weights generates interpolation weights from req.Source to req.Target.
func (g *Generator) Weights(ctx context.Context, req WeightsRequest) error {
	method := req.Method
	if method == "" {
		method = DefaultMethod
	}
	if req.Target == "" {
		return &domain.ConfigurationError{Grid: req.Target, Reason: "weights need a target grid"}
	}
	if !strings.HasPrefix(method, "gen") {
		method = "gen" + method
	}
	args := g.baseArgs()
	args = append(args, method+","+req.Target)
	args = append(args, FlattenExtra(req.Extra)...)
	args = append(args, req.Source, req.Output)
	return g.run(ctx, method, args, req.Output)
}

// Env returns the environment overrides passed to every invocation.
func (g *Generator) Env() map[string]string {
	env := map[string]string{}
	if g.opts.DownloadDir != "" {
		env[EnvDownloadPath] = g.opts.DownloadDir
	}
	if g.opts.IconGridsDir != "" {
		env[EnvIconGrids] = g.opts.IconGridsDir
	}
	if g.opts.Extrapolate {
		env[EnvExtrapolate] = "on"
	} else {
		env[EnvExtrapolate] = "off"
	}
	return env
}

func (g *Generator) baseArgs() []string {
	args := append([]string{}, g.opts.GlobalFlags...)
	return append(args, "-f", "nc4")
}

func (g *Generator) run(ctx context.Context, op string, args []string, output string) error {
	ctx, span := tracer.Start(ctx, "cdo."+op, trace.WithAttributes(
		attribute.String("cdo.operator", op),
		attribute.String("cdo.output", output),
	))
	defer span.End()

	cmd := Command{Name: g.opts.Binary, Args: args, Env: g.Env()}
	g.logger.Info("running grid generator", "command", cmd.String())

	start := time.Now()
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &domain.GenerationError{Command: cmd.Name, Args: args, Target: output, Err: err, Stderr: string(res.Stderr)}
	}
	if res.ExitCode != 0 {
		gerr := &domain.GenerationError{
			Command:  cmd.Name,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   string(res.Stderr),
			Target:   output,
		}
		span.SetStatus(codes.Error, gerr.Error())
		return gerr
	}
	g.logger.Debug("grid generator finished", "operator", op, "output", output, "elapsed", time.Since(start))
	return nil
}

// FlattenExtra splits every pre-processing entry into operators, keeps their
// order and makes sure each one carries a leading dash.
func FlattenExtra(extra []string) []string {
	var out []string
	for _, e := range extra {
		for _, op := range strings.Fields(e) {
			if !strings.HasPrefix(op, "-") {
				op = "-" + op
			}
			out = append(out, op)
		}
	}
	return out
}

// String renders a command for log and error messages.
func (c Command) String() string {
	return fmt.Sprintf("%s %s", c.Name, strings.Join(c.Args, " "))
}
