package prediction

import (
	"fmt"
	"math"
	"sort"

	"github.com/spf13/viper"
)

// ModelSpec describes one feature model. When Features is non-empty the
// vector is built in that order and the input keys must match it exactly.
type ModelSpec struct {
	Type      ModelType `mapstructure:"type"`
	Dimension int       `mapstructure:"dimension"`
	Features  []string  `mapstructure:"features"`
}

// Registry is built once at startup and only read afterwards.
type Registry struct {
	specs map[ModelType]ModelSpec
}

func NewRegistry(specs ...ModelSpec) (*Registry, error) {
	r := &Registry{specs: make(map[ModelType]ModelSpec, len(specs))}
	for _, s := range specs {
		t, err := ParseModelType(string(s.Type))
		if err != nil {
			return nil, err
		}
		s.Type = t
		if s.Dimension <= 0 {
			return nil, fmt.Errorf("model %s: dimension must be positive", s.Type)
		}
		if len(s.Features) > 0 && len(s.Features) != s.Dimension {
			return nil, fmt.Errorf("model %s: %d feature names for dimension %d", s.Type, len(s.Features), s.Dimension)
		}
		if _, dup := r.specs[s.Type]; dup {
			return nil, fmt.Errorf("model %s declared twice", s.Type)
		}
		r.specs[s.Type] = s
	}
	return r, nil
}

// DefaultRegistry knows the three built-in models with their conventional
// feature names.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		ModelSpec{Type: ModelBreastCancer, Dimension: 30, Features: breastCancerFeatures()},
		ModelSpec{Type: ModelHeartDisease, Dimension: 13, Features: []string{
			"age", "sex", "cp", "trestbps", "chol", "fbs", "restecg",
			"thalach", "exang", "oldpeak", "slope", "ca", "thal",
		}},
		ModelSpec{Type: ModelDiabetes, Dimension: 8, Features: []string{
			"pregnancies", "glucose", "blood_pressure", "skin_thickness",
			"insulin", "bmi", "diabetes_pedigree_function", "age",
		}},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func breastCancerFeatures() []string {
	base := []string{
		"radius", "texture", "perimeter", "area", "smoothness",
		"compactness", "concavity", "concave_points", "symmetry", "fractal_dimension",
	}
	out := make([]string, 0, 30)
	for _, suffix := range []string{"mean", "se", "worst"} {
		for _, b := range base {
			out = append(out, b+"_"+suffix)
		}
	}
	return out
}

// LoadRegistry reads a YAML or JSON manifest with a top-level "models" list.
// An empty path yields DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}
	var specs []ModelSpec
	if err := v.UnmarshalKey("models", &specs); err != nil {
		return nil, fmt.Errorf("decode model manifest: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("model manifest %s declares no models", path)
	}
	return NewRegistry(specs...)
}

func (r *Registry) Spec(model ModelType) (ModelSpec, bool) {
	s, ok := r.specs[model]
	return s, ok
}

func (r *Registry) Models() []ModelType {
	out := make([]ModelType, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Vector validates features for model and returns them in model order.
func (r *Registry) Vector(model ModelType, features map[string]float64) ([]float64, error) {
	spec, ok := r.Spec(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModelType, model)
	}
	if len(features) != spec.Dimension {
		return nil, fmt.Errorf("%w: %s expects %d features, got %d", ErrInvalidFeatures, model, spec.Dimension, len(features))
	}

	names := spec.Features
	if len(names) == 0 {
		names = make([]string, 0, len(features))
		for k := range features {
			names = append(names, k)
		}
		sort.Strings(names)
	}

	vec := make([]float64, 0, len(names))
	for _, name := range names {
		v, ok := features[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing feature %q", ErrInvalidFeatures, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: feature %q is not a finite number", ErrInvalidFeatures, name)
		}
		vec = append(vec, v)
	}
	return vec, nil
}
