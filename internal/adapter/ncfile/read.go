// Package ncfile reads and writes datasets as NetCDF files.
package ncfile

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/climeval/internal/dataset"
)

// Read loads every variable of a NetCDF file. One-dimensional variables named
// after their dimension, and variables listed in a "coordinates" or "bounds"
// attribute, become coordinates; everything else is a data variable.
// Fill values are replaced with NaN. Text variables are skipped.
func Read(path string) (*dataset.Dataset, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	n, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("failed to count variables in %s: %w", path, err)
	}

	vars := make([]*dataset.Variable, 0, n)
	for i := 0; i < n; i++ {
		v, err := readVariable(nc.VarN(i))
		if errors.Is(err, errNotNumeric) {
			slog.Debug("skipping variable", "path", path, "reason", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		vars = append(vars, v)
	}

	// Names referenced as auxiliary coordinates or bounds.
	aux := make(map[string]bool)
	for _, v := range vars {
		for _, name := range strings.Fields(v.Attrs["coordinates"]) {
			aux[name] = true
		}
		if b := v.Attrs["bounds"]; b != "" {
			aux[b] = true
		}
	}

	ds := dataset.New()
	for _, v := range vars {
		isDimCoord := len(v.Dims) == 1 && v.Dims[0] == v.Name
		if isDimCoord || aux[v.Name] {
			ds.Coords = append(ds.Coords, v)
		} else {
			ds.Vars = append(ds.Vars, v)
		}
	}
	return ds, nil
}

func readVariable(v netcdf.Var) (*dataset.Variable, error) {
	name, err := v.Name()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable name: %w", err)
	}
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
	}

	dimNames := make([]string, len(dims))
	shape := make([]int, len(dims))
	total := 1
	for i, d := range dims {
		dn, err := d.Name()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimension name of %s: %w", name, err)
		}
		length, err := d.Len()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimension length of %s: %w", name, err)
		}
		dimNames[i] = dn
		shape[i] = int(length)
		total *= int(length)
	}

	values, err := readFloat64s(v, total)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if fv, ok := getFillValue(v); ok {
		for i := range values {
			if values[i] == fv {
				values[i] = math.NaN()
			}
		}
	}

	attrs, err := readAttrs(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes of %s: %w", name, err)
	}

	out, err := dataset.NewVariable(name, dimNames, shape, values)
	if err != nil {
		return nil, err
	}
	out.Attrs = attrs
	return out, nil
}

var errNotNumeric = errors.New("not a numeric variable")

// readFloat64s reads a variable of any numeric type as float64.
func readFloat64s(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	if t == netcdf.CHAR || t == netcdf.STRING {
		return nil, fmt.Errorf("%w: type %v", errNotNumeric, t)
	}
	if total == 0 {
		return []float64{}, nil
	}
	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, total)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.INT64:
		tmp := make([]int64, total)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.BYTE:
		tmp := make([]int8, total)
		if err := v.ReadInt8s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.UBYTE:
		tmp := make([]uint8, total)
		if err := v.ReadUint8s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.USHORT:
		tmp := make([]uint16, total)
		if err := v.ReadUint16s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.UINT:
		tmp := make([]uint32, total)
		if err := v.ReadUint32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.UINT64:
		tmp := make([]uint64, total)
		if err := v.ReadUint64s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	default:
		return nil, fmt.Errorf("%w: type %v", errNotNumeric, t)
	}
}

type number interface {
	float32 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

func widen[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, val := range in {
		out[i] = float64(val)
	}
	return out
}

// getFillValue returns the _FillValue or missing_value attribute if present as float64.
func getFillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if a == (netcdf.Attr{}) {
			continue
		}
		n, err := a.Len()
		if err != nil || n == 0 {
			continue
		}
		t, err := a.Type()
		if err != nil {
			continue
		}
		if nums, err := readNumericAttr(a, t, int(n)); err == nil {
			return nums[0], true
		}
	}
	return 0, false
}

// readAttrs reads text attributes verbatim and numeric attributes formatted
// as space-separated numbers.
func readAttrs(v netcdf.Var) (dataset.Attrs, error) {
	n, err := v.NAttrs()
	if err != nil {
		return nil, err
	}
	attrs := make(dataset.Attrs, n)
	for i := 0; i < n; i++ {
		a, err := v.AttrN(i)
		if err != nil {
			return nil, err
		}
		length, err := a.Len()
		if err != nil || length == 0 {
			continue
		}
		t, err := a.Type()
		if err != nil {
			continue
		}
		switch t {
		case netcdf.CHAR:
			buf := make([]byte, length)
			if err := a.ReadBytes(buf); err != nil {
				return nil, err
			}
			attrs[a.Name()] = strings.TrimRight(string(buf), "\x00")
		default:
			nums, err := readNumericAttr(a, t, int(length))
			if err != nil {
				continue
			}
			parts := make([]string, len(nums))
			for j, f := range nums {
				parts[j] = strconv.FormatFloat(f, 'g', -1, 64)
			}
			attrs[a.Name()] = strings.Join(parts, " ")
		}
	}
	return attrs, nil
}

func readNumericAttr(a netcdf.Attr, t netcdf.Type, n int) ([]float64, error) {
	switch t {
	case netcdf.DOUBLE:
		buf := make([]float64, n)
		err := a.ReadFloat64s(buf)
		return buf, err
	case netcdf.FLOAT:
		buf := make([]float32, n)
		err := a.ReadFloat32s(buf)
		return widen(buf), err
	case netcdf.INT:
		buf := make([]int32, n)
		err := a.ReadInt32s(buf)
		return widen(buf), err
	case netcdf.SHORT:
		buf := make([]int16, n)
		err := a.ReadInt16s(buf)
		return widen(buf), err
	case netcdf.BYTE:
		buf := make([]int8, n)
		err := a.ReadInt8s(buf)
		return widen(buf), err
	case netcdf.UBYTE:
		buf := make([]uint8, n)
		err := a.ReadUint8s(buf)
		return widen(buf), err
	default:
		return nil, fmt.Errorf("unsupported attribute type: %v", t)
	}
}
