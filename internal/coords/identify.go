// Package coords classifies the coordinates of a dataset into latitude,
// longitude, time, isobaric and depth axes.
package coords

import (
	"log/slog"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
)

var nameAliases = map[domain.Role][]string{
	domain.RoleLatitude:  {"lat", "latitude", "nav_lat"},
	domain.RoleLongitude: {"lon", "longitude", "nav_lon"},
	domain.RoleTime:      {"time", "valid_time", "time_counter"},
	domain.RoleIsobaric:  {"plev", "pressure_levels", "isobaricInhPa"},
	domain.RoleDepth:     {"depth", "deptht", "depthu", "depthv", "depthw", "olevel", "z_l"},
}

var standardNames = map[domain.Role]string{
	domain.RoleLatitude:  "latitude",
	domain.RoleLongitude: "longitude",
	domain.RoleTime:      "time",
	domain.RoleIsobaric:  "air_pressure",
	domain.RoleDepth:     "depth",
}

var axisAttrs = map[domain.Role]string{
	domain.RoleLatitude:  "Y",
	domain.RoleLongitude: "X",
}

// LatitudeUnits and LongitudeUnits are the CF spellings of horizontal units.
var (
	LatitudeUnits  = []string{"degrees_north", "degree_north", "degree_N", "degrees_N", "degreeN", "degreesN"}
	LongitudeUnits = []string{"degrees_east", "degree_east", "degree_E", "degrees_E", "degreeE", "degreesE"}
)

type matcher func(role domain.Role, c *dataset.Variable) bool

// matchers are tried in order; the first one that assigns a role wins.
var matchers = []matcher{
	func(role domain.Role, c *dataset.Variable) bool {
		return slices.Contains(nameAliases[role], c.Name)
	},
	func(role domain.Role, c *dataset.Variable) bool {
		sn := c.Attrs["standard_name"]
		return sn != "" && sn == standardNames[role]
	},
	func(role domain.Role, c *dataset.Variable) bool {
		ax := strings.ToUpper(c.Attrs["axis"])
		return ax != "" && ax == axisAttrs[role]
	},
	func(role domain.Role, c *dataset.Variable) bool {
		units := c.Attrs["units"]
		switch role {
		case domain.RoleLatitude:
			return slices.Contains(LatitudeUnits, units)
		case domain.RoleLongitude:
			return slices.Contains(LongitudeUnits, units)
		case domain.RoleIsobaric:
			return IsPressure(units)
		case domain.RoleDepth:
			// Length units alone also fit projected x/y axes.
			return c.Attrs["positive"] != "" && IsLength(units)
		default:
			return false
		}
	},
}

// Identifier classifies dataset coordinates.
type Identifier struct {
	logger *slog.Logger
}

// NewIdentifier creates an identifier. A nil logger uses slog.Default().
func NewIdentifier(logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identifier{logger: logger}
}

// Identify returns one descriptor per role. A role with no candidate, or with
// more than one, maps to nil.
func (id *Identifier) Identify(ds *dataset.Dataset) domain.CoordinateMap {
	candidates := make(map[domain.Role][]*dataset.Variable)
	for _, c := range ds.Coords {
		if role, ok := classify(c); ok {
			candidates[role] = append(candidates[role], c)
		}
	}

	out := make(domain.CoordinateMap, len(domain.Roles))
	for _, role := range domain.Roles {
		found := candidates[role]
		switch len(found) {
		case 0:
			out[role] = nil
		case 1:
			out[role] = describe(role, found[0])
		default:
			names := make([]string, len(found))
			for i, c := range found {
				names[i] = c.Name
			}
			id.logger.Warn("ambiguous coordinate, leaving unidentified", "role", role, "candidates", names)
			out[role] = nil
		}
	}
	return out
}

func classify(c *dataset.Variable) (domain.Role, bool) {
	for _, match := range matchers {
		for _, role := range domain.Roles {
			if match(role, c) {
				return role, true
			}
		}
	}
	return "", false
}

func describe(role domain.Role, c *dataset.Variable) *domain.CoordinateDescriptor {
	d := &domain.CoordinateDescriptor{
		Name:   c.Name,
		Role:   role,
		Units:  c.Attrs["units"],
		Bounds: c.Attrs["bounds"],
	}

	finite := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) > 0 {
		d.Min = floats.Min(finite)
		d.Max = floats.Max(finite)
	}

	switch role {
	case domain.RoleLatitude, domain.RoleLongitude:
		d.Direction = StoredDirection(c.Values)
	case domain.RoleIsobaric, domain.RoleDepth:
		d.Positive = positive(role, c)
	}
	return d
}

// StoredDirection compares the first two values. Fewer than two values give "".
func StoredDirection(values []float64) domain.Direction {
	if len(values) < 2 {
		return ""
	}
	if values[1] > values[0] {
		return domain.Increasing
	}
	return domain.Decreasing
}

func positive(role domain.Role, c *dataset.Variable) domain.Positive {
	switch strings.ToLower(c.Attrs["positive"]) {
	case "up":
		return domain.PositiveUp
	case "down":
		return domain.PositiveDown
	}
	if role == domain.RoleIsobaric {
		return domain.PositiveDown
	}
	if len(c.Values) > 0 && c.Values[0] < 0 {
		return domain.PositiveUp
	}
	return domain.PositiveDown
}
