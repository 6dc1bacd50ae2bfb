package optimize

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/strategies"
	"gopkg.in/yaml.v3"
)

// maxValuesPerRange bounds a single range so a typo in step cannot allocate
// millions of values.
const maxValuesPerRange = 100_000

var ErrIncompleteRange = errors.New("incomplete parameter range")

// ParamRange is the inclusive range Min, Min+Step, ... up to Max.
type ParamRange struct {
	Name string  `yaml:"-"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// Check reports why the range cannot be enumerated, or nil.
func (r ParamRange) Check() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: unnamed range", ErrIncompleteRange)
	case math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsNaN(r.Step):
		return fmt.Errorf("%w: %s needs min, max and step", ErrIncompleteRange, r.Name)
	case math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) || math.IsInf(r.Step, 0):
		return fmt.Errorf("%w: %s has an infinite bound", ErrIncompleteRange, r.Name)
	case r.Step <= 0:
		return fmt.Errorf("%w: %s step must be > 0, got %g", ErrIncompleteRange, r.Name, r.Step)
	case r.Max < r.Min:
		return fmt.Errorf("%w: %s max %g is below min %g", ErrIncompleteRange, r.Name, r.Max, r.Min)
	case r.count() > maxValuesPerRange:
		return fmt.Errorf("%w: %s spans more than %d values", ErrIncompleteRange, r.Name, maxValuesPerRange)
	}
	return nil
}

func (r ParamRange) count() float64 {
	return math.Floor((r.Max-r.Min)/r.Step+1e-9) + 1
}

// Values enumerates the range. The small epsilon and the rounding keep Max
// in the range when float accumulation would otherwise land just past it.
func (r ParamRange) Values() []float64 {
	if r.Check() != nil {
		return nil
	}
	n := int(r.count())
	out := make([]float64, n)
	for i := range out {
		out[i] = round10(r.Min + float64(i)*r.Step)
	}
	return out
}

func round10(x float64) float64 {
	return math.Round(x*1e10) / 1e10
}

// Grid is an ordered set of ranges. Order matters: it fixes the
// enumeration order of combinations.
type Grid []ParamRange

// Clean drops the ranges that cannot be enumerated and reports why.
func (g Grid) Clean() (Grid, []error) {
	var (
		out  Grid
		errs []error
		seen = map[string]bool{}
	)
	for _, r := range g {
		if err := r.Check(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("%w: %s listed twice", ErrIncompleteRange, r.Name))
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out, errs
}

// Size is the number of combinations, saturating at math.MaxInt.
func (g Grid) Size() int {
	return g.Space().Size()
}

// Space is the enumerable Cartesian product of a grid.
type Space struct {
	names  []string
	values [][]float64
	size   int
}

// Space expands the grid. Ranges failing Check contribute no values, so
// callers clean the grid first.
func (g Grid) Space() Space {
	s := Space{size: 1}
	if len(g) == 0 {
		s.size = 0
	}
	for _, r := range g {
		vs := r.Values()
		s.names = append(s.names, r.Name)
		s.values = append(s.values, vs)
		switch {
		case len(vs) == 0:
			s.size = 0
		case s.size > math.MaxInt/len(vs):
			s.size = math.MaxInt
		default:
			s.size *= len(vs)
		}
	}
	return s
}

func (s Space) Size() int { return s.size }

// At decodes combination k. The last parameter varies fastest.
func (s Space) At(k int) strategies.Params {
	p := make(strategies.Params, len(s.names))
	for i := len(s.names) - 1; i >= 0; i-- {
		n := len(s.values[i])
		p[s.names[i]] = s.values[i][k%n]
		k /= n
	}
	return p
}

// UnmarshalYAML reads a mapping of name: {min, max, step}, keeping the
// document order. Missing fields are left as NaN so Check reports them.
func (g *Grid) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("grid: line %d: expected a mapping of parameter ranges", n.Line)
	}
	out := make(Grid, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var raw struct {
			Min  *float64 `yaml:"min"`
			Max  *float64 `yaml:"max"`
			Step *float64 `yaml:"step"`
		}
		if err := val.Decode(&raw); err != nil {
			return fmt.Errorf("grid: %s: %w", key.Value, err)
		}
		out = append(out, ParamRange{
			Name: key.Value,
			Min:  orNaN(raw.Min),
			Max:  orNaN(raw.Max),
			Step: orNaN(raw.Step),
		})
	}
	*g = out
	return nil
}

// MarshalYAML writes the grid back as an ordered mapping.
func (g Grid) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, r := range g {
		var val yaml.Node
		if err := val.Encode(r); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: r.Name}, &val)
	}
	return n, nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ParseGridYAML decodes a grid document.
func ParseGridYAML(data []byte) (Grid, error) {
	var g Grid
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultGrid builds a grid from the registered parameter ranges of id.
func DefaultGrid(id strategies.ID) (Grid, error) {
	e, ok := strategies.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", strategies.ErrUnknownStrategy, id)
	}
	g := make(Grid, 0, len(e.Params))
	for _, p := range e.Params {
		g = append(g, ParamRange{Name: p.Name, Min: p.Min, Max: p.Max, Step: p.Step})
	}
	return g, nil
}
