package app

import (
	_ "embed"
	"fmt"
	"os"

	"perchmp/adapters/stats/models"
	"perchmp/adapters/stats/posthoc"
	"perchmp/domain/core"
	"perchmp/domain/mesocosm"
	"perchmp/domain/run"
	"perchmp/domain/stats"
	"perchmp/internal/errors"

	"gopkg.in/yaml.v3"
)

//go:embed default_plan.yaml
var defaultPlan []byte

// Plan lists the summaries and models of an analysis
type Plan struct {
	Name string `yaml:"name"`
	// Response is the primary response; rows missing it are dropped before anything else
	Response  string         `yaml:"response"`
	Summaries []SummaryEntry `yaml:"summaries"`
	Models    []ModelEntry   `yaml:"models"`

	hash core.Hash
}

// SummaryEntry is one group summary
type SummaryEntry struct {
	Name      string        `yaml:"name"`
	Frame     run.FrameKind `yaml:"frame,omitempty"`
	Keys      []string      `yaml:"keys"`
	Responses []string      `yaml:"responses"`
}

// ModelEntry is one model of the plan and what to derive from it
type ModelEntry struct {
	Name            string          `yaml:"name"`
	Formula         string          `yaml:"formula"`
	Kind            stats.ModelKind `yaml:"kind"`
	Family          stats.Family    `yaml:"family,omitempty"`
	Link            stats.Link      `yaml:"link,omitempty"`
	Frame           run.FrameKind   `yaml:"frame,omitempty"`
	ConfidenceLevel float64         `yaml:"confidence_level,omitempty"`

	PostHoc      bool                    `yaml:"posthoc,omitempty"`
	Simulate     bool                    `yaml:"simulate,omitempty"`
	DispersionBy []string                `yaml:"dispersion_by,omitempty"`
	Predict      *posthoc.PredictRequest `yaml:"predict,omitempty"`

	// Supersedes names an earlier model this one respecifies
	Supersedes string `yaml:"supersedes,omitempty"`
	// Fallback is fitted only when this model fails
	Fallback *ModelEntry `yaml:"fallback,omitempty"`
}

// DefaultPlan returns the built-in plan
func DefaultPlan() *Plan {
	p, err := ParsePlan(defaultPlan)
	if err != nil {
		panic(fmt.Sprintf("built-in plan: %v", err))
	}
	return p
}

// LoadPlan reads a plan file; an empty path returns the built-in plan
func LoadPlan(path string) (*Plan, error) {
	if path == "" {
		return DefaultPlan(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read plan %s", path)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	return p, nil
}

// ParsePlan decodes and validates a YAML plan
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("plan is not valid YAML: %v", err))
	}
	if p.Response == "" {
		p.Response = mesocosm.ColTotalLength
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.hash = core.NewHash(data)
	return &p, nil
}

// Hash fingerprints the plan source
func (p *Plan) Hash() core.Hash {
	return p.hash
}

// Validate checks names are unique, formulas parse and references resolve
func (p *Plan) Validate() error {
	if len(p.Models) == 0 && len(p.Summaries) == 0 {
		return errors.InvalidInput("plan has no summaries or models")
	}
	for _, s := range p.Summaries {
		if len(s.Keys) == 0 || len(s.Responses) == 0 {
			return errors.InvalidInput(fmt.Sprintf("summary %q needs keys and responses", s.Name))
		}
		if err := checkFrame(s.Frame); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	var check func(e *ModelEntry) error
	check = func(e *ModelEntry) error {
		if e.Name == "" {
			return errors.InvalidInput(fmt.Sprintf("model %q has no name", e.Formula))
		}
		if seen[e.Name] {
			return errors.InvalidInput(fmt.Sprintf("model name %q is used twice", e.Name))
		}
		if e.Supersedes != "" && !seen[e.Supersedes] {
			return errors.InvalidInput(fmt.Sprintf("model %q supersedes %q, which is not an earlier model", e.Name, e.Supersedes))
		}
		seen[e.Name] = true
		if err := checkFrame(e.Frame); err != nil {
			return err
		}
		if _, err := e.Spec(); err != nil {
			return errors.Wrapf(errors.InvalidInput(err.Error()), "model %q", e.Name)
		}
		if e.Fallback != nil {
			return check(e.Fallback)
		}
		return nil
	}
	for i := range p.Models {
		if err := check(&p.Models[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkFrame(f run.FrameKind) error {
	switch f {
	case "", run.FrameFish, run.FrameMesocosm:
		return nil
	}
	return errors.InvalidInput(fmt.Sprintf("unknown frame %q", f))
}

// Spec builds the model specification. Family and link default from the kind.
func (e *ModelEntry) Spec() (stats.ModelSpec, error) {
	f, err := models.ParseFormula(e.Formula)
	if err != nil {
		return stats.ModelSpec{}, err
	}
	spec := stats.ModelSpec{
		Name:            e.Name,
		Kind:            e.Kind,
		Family:          e.Family,
		Link:            e.Link,
		ConfidenceLevel: e.ConfidenceLevel,
	}
	if spec.Family == "" {
		spec.Family = stats.FamilyGaussian
		if e.Kind == stats.KindBeta {
			spec.Family = stats.FamilyBeta
		}
	}
	if spec.Link == "" {
		spec.Link = stats.LinkIdentity
		if e.Kind == stats.KindBeta {
			spec.Link = stats.LinkLogit
		}
	}
	spec = f.Apply(spec)
	if err := spec.Validate(); err != nil {
		return stats.ModelSpec{}, err
	}
	return spec, nil
}

// FrameKind returns the entry's frame with its default applied
func (e *ModelEntry) FrameKind() run.FrameKind {
	if e.Frame == "" {
		return run.FrameFish
	}
	return e.Frame
}

// FrameKind returns the summary's frame with its default applied
func (s *SummaryEntry) FrameKind() run.FrameKind {
	if s.Frame == "" {
		return run.FrameFish
	}
	return s.Frame
}

// Select returns a plan with only the named models, plus any model they supersede, and
// no summaries. The derived plan is hashed from its own YAML.
func (p *Plan) Select(names ...string) (*Plan, error) {
	index := make(map[string]int, len(p.Models))
	for i, m := range p.Models {
		index[m.Name] = i
	}
	keep := make(map[int]bool)
	var mark func(name string) error
	mark = func(name string) error {
		i, ok := index[name]
		if !ok {
			return errors.InvalidInput(fmt.Sprintf("plan %s has no top-level model %q", p.Name, name))
		}
		keep[i] = true
		if s := p.Models[i].Supersedes; s != "" {
			return mark(s)
		}
		return nil
	}
	for _, name := range names {
		if err := mark(name); err != nil {
			return nil, err
		}
	}

	out := &Plan{Name: p.Name, Response: p.Response}
	for i, m := range p.Models {
		if keep[i] {
			out.Models = append(out.Models, m)
		}
	}
	return out.rehash()
}

// SummariesOnly returns the plan without its models
func (p *Plan) SummariesOnly() (*Plan, error) {
	return (&Plan{Name: p.Name, Response: p.Response, Summaries: p.Summaries}).rehash()
}

func (p *Plan) rehash() (*Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode plan")
	}
	p.hash = core.NewHash(data)
	return p, nil
}
