package ncfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/climeval/internal/dataset"
)

// skipAttrs are typed attributes that cannot be written back as text.
var skipAttrs = map[string]bool{
	"_FillValue":    true,
	"missing_value": true,
}

// Write stores a dataset as a NetCDF-4 file, replacing any existing file.
// All variables are written as DOUBLE. The "coordinates" attribute of data
// variables is rebuilt from the non-dimension coordinates they span.
func Write(path string, ds *dataset.Dataset) (err error) {
	nc, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer func() {
		if cerr := nc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	// Create dimensions.
	dims := make(map[string]netcdf.Dim)
	for _, name := range ds.Dims() {
		size, _ := ds.DimSize(name)
		d, err := nc.AddDim(name, uint64(size))
		if err != nil {
			return fmt.Errorf("failed to add dimension %s: %w", name, err)
		}
		dims[name] = d
	}

	type pending struct {
		nv     netcdf.Var
		values []float64
	}
	var writes []pending

	auxCoords := auxiliaryCoords(ds)
	add := func(v *dataset.Variable, isData bool) error {
		vdims := make([]netcdf.Dim, len(v.Dims))
		for i, dn := range v.Dims {
			vdims[i] = dims[dn]
		}
		nv, err := nc.AddVar(v.Name, netcdf.DOUBLE, vdims)
		if err != nil {
			return fmt.Errorf("failed to add variable %s: %w", v.Name, err)
		}
		attrs := v.Attrs.Clone()
		if isData {
			delete(attrs, "coordinates")
			if names := coordsSpanning(v, auxCoords); len(names) > 0 {
				attrs["coordinates"] = strings.Join(names, " ")
			}
		}
		if err := writeAttrs(nv, attrs); err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
		writes = append(writes, pending{nv: nv, values: v.Values})
		return nil
	}

	for _, c := range ds.Coords {
		if err := add(c, false); err != nil {
			return err
		}
	}
	for _, v := range ds.Vars {
		if err := add(v, true); err != nil {
			return err
		}
	}

	for _, k := range sortedKeys(ds.Attrs) {
		if err := nc.Attr(k).WriteBytes([]byte(ds.Attrs[k])); err != nil {
			return fmt.Errorf("failed to write global attribute %s: %w", k, err)
		}
	}

	if err := nc.EndDef(); err != nil {
		return fmt.Errorf("enddef: %w", err)
	}

	for _, w := range writes {
		if len(w.values) == 0 {
			continue
		}
		if err := w.nv.WriteFloat64s(w.values); err != nil {
			name, _ := w.nv.Name()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeAttrs(nv netcdf.Var, attrs dataset.Attrs) error {
	for _, k := range sortedKeys(attrs) {
		if skipAttrs[k] || attrs[k] == "" {
			continue
		}
		if err := nv.Attr(k).WriteBytes([]byte(attrs[k])); err != nil {
			return fmt.Errorf("failed to write attribute %s: %w", k, err)
		}
	}
	return nil
}

// auxiliaryCoords returns coordinates that are not dimension coordinates.
func auxiliaryCoords(ds *dataset.Dataset) []*dataset.Variable {
	var out []*dataset.Variable
	for _, c := range ds.Coords {
		if len(c.Dims) == 1 && c.Dims[0] == c.Name {
			continue
		}
		out = append(out, c)
	}
	return out
}

func coordsSpanning(v *dataset.Variable, coords []*dataset.Variable) []string {
	var names []string
	for _, c := range coords {
		covered := true
		for _, d := range c.Dims {
			if !v.HasDim(d) {
				covered = false
				break
			}
		}
		if covered {
			names = append(names, c.Name)
		}
	}
	return names
}

func sortedKeys(m dataset.Attrs) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
