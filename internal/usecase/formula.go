package usecase

import (
	"errors"
	"fmt"

	"go.ngs.io/climeval/internal/adapter/ncfile"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/formula"
)

// FormulaRequest evaluates an expression over inline values or the variables
// of a NetCDF file.
type FormulaRequest struct {
	Expression string `json:"expression" validate:"required"`
	// Variables are 1-D arrays of equal length sharing the dimension "index".
	Variables map[string][]float64 `json:"variables"`
	// SamplePath is read when set; inline variables are added on top.
	SamplePath string `json:"sample_path"`
}

// FormulaResponse is the evaluation result.
type FormulaResponse struct {
	Name   string    `json:"name"`
	Dims   []string  `json:"dims"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
	Trace  []string  `json:"trace"`
}

// ErrInvalidFormula wraps request and evaluation errors.
var ErrInvalidFormula = errors.New("invalid formula request")

// EvaluateFormula runs the formula evaluator and returns its trace.
func EvaluateFormula(req FormulaRequest) (*FormulaResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
	}

	ds := dataset.New()
	if req.SamplePath != "" {
		var err error
		if ds, err = ncfile.Read(req.SamplePath); err != nil {
			return nil, err
		}
	}
	for name, values := range req.Variables {
		v, err := dataset.NewVariable(name, []string{"index"}, []int{len(values)}, values)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
		}
		if err := ds.SetVar(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
		}
	}

	v, steps, err := formula.Trace(req.Expression, ds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
	}
	resp := &FormulaResponse{Name: v.Name, Dims: v.Dims, Shape: v.Shape, Values: v.Values, Trace: make([]string, 0, len(steps))}
	for _, s := range steps {
		resp.Trace = append(resp.Trace, s.String())
	}
	return resp, nil
}
