package coords

import (
	"fmt"
	"strconv"
	"strings"
)

// Dimension is the exponent vector of a physical quantity.
type Dimension struct {
	Mass, Length, Time, Temperature int
}

func (d Dimension) add(o Dimension, sign int) Dimension {
	return Dimension{
		Mass:        d.Mass + sign*o.Mass,
		Length:      d.Length + sign*o.Length,
		Time:        d.Time + sign*o.Time,
		Temperature: d.Temperature + sign*o.Temperature,
	}
}

func (d Dimension) scale(n int) Dimension {
	return Dimension{Mass: d.Mass * n, Length: d.Length * n, Time: d.Time * n, Temperature: d.Temperature * n}
}

// Reference dimensionalities.
var (
	DimPressure = Dimension{Mass: 1, Length: -1, Time: -2}
	DimLength   = Dimension{Length: 1}
)

var (
	mass     = Dimension{Mass: 1}
	length   = Dimension{Length: 1}
	duration = Dimension{Time: 1}
	force    = Dimension{Mass: 1, Length: 1, Time: -2}
)

// baseUnits may carry an SI prefix.
var baseUnits = map[string]Dimension{
	"Pa": DimPressure, "pascal": DimPressure,
	"bar": DimPressure,
	"N":   force, "newton": force,
	"m": length, "meter": length, "metre": length,
	"g": mass, "gram": mass,
	"s": duration, "second": duration,
	"K": {Temperature: 1}, "kelvin": {Temperature: 1},
}

// fixedUnits never take a prefix.
var fixedUnits = map[string]Dimension{
	"atm": DimPressure, "atmosphere": DimPressure,
	"Torr": DimPressure, "torr": DimPressure,
	"mmHg": DimPressure, "psi": DimPressure,
	"mb": DimPressure, "hectopascal": DimPressure, "millibar": DimPressure,
	"km": length, "cm": length, "mm": length,
	"kg": mass,
	"min": duration, "h": duration, "hour": duration, "day": duration, "d": duration,
	"1": {}, "": {},
}

var prefixes = []string{
	"deca", "hecto", "kilo", "mega", "giga", "deci", "centi", "milli", "micro", "nano",
	"da", "h", "k", "M", "G", "d", "c", "m", "u", "µ", "n",
}

// Dimensionality parses a UDUNITS-style unit string such as "hPa",
// "kg m-1 s-2" or "N/m2" into its dimension vector.
func Dimensionality(units string) (Dimension, error) {
	units = strings.TrimSpace(units)
	numerator, denominator, hasDenominator := strings.Cut(units, "/")

	dim, err := parseProduct(numerator)
	if err != nil {
		return Dimension{}, err
	}
	if hasDenominator {
		den, err := parseProduct(strings.Trim(denominator, "()"))
		if err != nil {
			return Dimension{}, err
		}
		dim = dim.add(den, -1)
	}
	return dim, nil
}

func parseProduct(s string) (Dimension, error) {
	var dim Dimension
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '*' || r == '.' || r == '·'
	})
	for _, f := range fields {
		term, err := parseTerm(f)
		if err != nil {
			return Dimension{}, err
		}
		dim = dim.add(term, 1)
	}
	return dim, nil
}

func parseTerm(term string) (Dimension, error) {
	symbol, exp := splitExponent(term)
	if d, ok := fixedUnits[symbol]; ok {
		return d.scale(exp), nil
	}
	if d, ok := baseUnits[symbol]; ok {
		return d.scale(exp), nil
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(symbol, p)
		if !ok || rest == "" {
			continue
		}
		if d, ok := baseUnits[rest]; ok {
			return d.scale(exp), nil
		}
	}
	return Dimension{}, fmt.Errorf("unknown unit %q", term)
}

// splitExponent separates "m-2", "m^-2" or "s2" into symbol and exponent.
func splitExponent(term string) (string, int) {
	term = strings.TrimPrefix(term, "^")
	i := len(term)
	for i > 0 && (term[i-1] >= '0' && term[i-1] <= '9') {
		i--
	}
	if i > 0 && (term[i-1] == '-' || term[i-1] == '+') {
		i--
	}
	if i == 0 || i == len(term) {
		return term, 1
	}
	symbol := strings.TrimSuffix(term[:i], "^")
	exp, err := strconv.Atoi(term[i:])
	if err != nil {
		return term, 1
	}
	return symbol, exp
}

// IsPressure reports whether units have the dimensionality of pressure.
func IsPressure(units string) bool {
	if units == "" {
		return false
	}
	d, err := Dimensionality(units)
	return err == nil && d == DimPressure
}

// IsLength reports whether units have the dimensionality of length.
func IsLength(units string) bool {
	if units == "" {
		return false
	}
	d, err := Dimensionality(units)
	return err == nil && d == DimLength
}
