// Package stats defines model specifications and the value types produced by fitting,
// diagnosing and comparing models.
package stats

import (
	"fmt"
	"math"
	"strings"

	"perchmp/domain/core"

	"gonum.org/v1/gonum/mat"
)

// ModelKind selects the fitting procedure
type ModelKind string

const (
	KindANOVA  ModelKind = "anova"  // one categorical factor, F-test on group means
	KindLinear ModelKind = "linear" // OLS, or REML mixed model when Random is set
	KindBeta   ModelKind = "beta"   // beta regression for rates in (0,1)
)

// Family is the error distribution
type Family string

const (
	FamilyGaussian Family = "gaussian"
	FamilyBeta     Family = "beta"
)

// Link maps the mean onto the linear predictor
type Link string

const (
	LinkIdentity Link = "identity"
	LinkLogit    Link = "logit"
	LinkProbit   Link = "probit"
)

// Transform is applied to a column before it enters the design
type Transform string

const (
	TransformNone  Transform = ""
	TransformLog   Transform = "log"
	TransformLog1p Transform = "log1p"
	TransformSqrt  Transform = "sqrt"
)

// Term is one column of a model formula
type Term struct {
	Column      string    `json:"column" yaml:"column"`
	Transform   Transform `json:"transform,omitempty" yaml:"transform,omitempty"`
	Categorical bool      `json:"categorical,omitempty" yaml:"categorical,omitempty"`
}

// String renders the term the way it appears in a formula
func (t Term) String() string {
	switch {
	case t.Categorical:
		return "factor(" + t.Column + ")"
	case t.Transform != TransformNone:
		return string(t.Transform) + "(" + t.Column + ")"
	}
	return t.Column
}

// Apply transforms a raw value; out-of-domain inputs become NaN
func (t Term) Apply(v float64) float64 {
	switch t.Transform {
	case TransformLog:
		if v <= 0 {
			return math.NaN()
		}
		return math.Log(v)
	case TransformLog1p:
		if v <= -1 {
			return math.NaN()
		}
		return math.Log1p(v)
	case TransformSqrt:
		if v < 0 {
			return math.NaN()
		}
		return math.Sqrt(v)
	}
	return v
}

// Inverse maps a transformed value back to the raw scale
func (t Term) Inverse(v float64) float64 {
	switch t.Transform {
	case TransformLog:
		return math.Exp(v)
	case TransformLog1p:
		return math.Expm1(v)
	case TransformSqrt:
		return v * v
	}
	return v
}

// ModelSpec describes one candidate model. Specs are values; respecifying returns a new spec.
type ModelSpec struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     ModelKind `json:"kind" yaml:"kind"`
	Response Term      `json:"response" yaml:"response"`
	Fixed    []Term    `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	// Random names the grouping column of a random intercept; empty for none
	Random string `json:"random,omitempty" yaml:"random,omitempty"`
	Family Family `json:"family" yaml:"family"`
	Link   Link   `json:"link" yaml:"link"`
	// ConfidenceLevel for coefficient intervals, 0.95 when zero
	ConfidenceLevel float64 `json:"confidence_level,omitempty" yaml:"confidence_level,omitempty"`
}

// Formula renders the spec as an R-style formula
func (s ModelSpec) Formula() string {
	var rhs []string
	for _, t := range s.Fixed {
		rhs = append(rhs, t.String())
	}
	if s.Random != "" {
		rhs = append(rhs, "(1|"+s.Random+")")
	}
	if len(rhs) == 0 {
		rhs = []string{"1"}
	}
	return s.Response.String() + " ~ " + strings.Join(rhs, " + ")
}

// Level returns the confidence level with its default applied
func (s ModelSpec) Level() float64 {
	if s.ConfidenceLevel <= 0 || s.ConfidenceLevel >= 1 {
		return 0.95
	}
	return s.ConfidenceLevel
}

// WithoutRandom returns the spec with the random intercept removed
func (s ModelSpec) WithoutRandom() ModelSpec {
	out := s.clone()
	out.Random = ""
	out.Name = s.Name + "-fixed"
	return out
}

// WithFixed returns the spec with an extra fixed-effect term
func (s ModelSpec) WithFixed(t Term) ModelSpec {
	out := s.clone()
	out.Fixed = append(out.Fixed, t)
	out.Name = s.Name + "+" + t.Column
	return out
}

func (s ModelSpec) clone() ModelSpec {
	out := s
	out.Fixed = append([]Term(nil), s.Fixed...)
	return out
}

// Validate checks family, link and kind are consistent
func (s ModelSpec) Validate() error {
	if s.Response.Column == "" {
		return fmt.Errorf("%w: response column is required", core.ErrUnsupportedModel)
	}
	if s.Response.Categorical {
		return fmt.Errorf("%w: response %s cannot be categorical", core.ErrUnsupportedModel, s.Response.Column)
	}
	switch s.Kind {
	case KindANOVA:
		if len(s.Fixed) != 1 || !s.Fixed[0].Categorical {
			return fmt.Errorf("%w: anova needs exactly one categorical factor", core.ErrUnsupportedModel)
		}
		if s.Random != "" {
			return fmt.Errorf("%w: anova has no random effects", core.ErrUnsupportedModel)
		}
		if s.Family != FamilyGaussian || s.Link != LinkIdentity {
			return fmt.Errorf("%w: anova is gaussian/identity", core.ErrUnsupportedModel)
		}
	case KindLinear:
		if s.Family != FamilyGaussian || s.Link != LinkIdentity {
			return fmt.Errorf("%w: linear models are gaussian/identity, transform the response instead", core.ErrUnsupportedModel)
		}
	case KindBeta:
		if s.Family != FamilyBeta {
			return fmt.Errorf("%w: beta regression needs the beta family", core.ErrUnsupportedModel)
		}
		if s.Link != LinkLogit && s.Link != LinkProbit {
			return fmt.Errorf("%w: beta regression link %q", core.ErrUnsupportedModel, s.Link)
		}
		if s.Response.Transform != TransformNone {
			return fmt.Errorf("%w: beta response cannot be transformed", core.ErrUnsupportedModel)
		}
	default:
		return fmt.Errorf("%w: kind %q", core.ErrUnsupportedModel, s.Kind)
	}
	return nil
}

// Coefficient is one fixed-effect estimate
type Coefficient struct {
	Term      string  `json:"term" yaml:"term"`
	Estimate  float64 `json:"estimate" yaml:"estimate"`
	StdErr    float64 `json:"std_err" yaml:"std_err"`
	Statistic float64 `json:"statistic" yaml:"statistic"`
	PValue    float64 `json:"p_value" yaml:"p_value"`
	Lower     float64 `json:"lower" yaml:"lower"`
	Upper     float64 `json:"upper" yaml:"upper"`
}

// ModelTest is an overall significance or goodness statistic
type ModelTest struct {
	Name      string  `json:"name" yaml:"name"`
	Statistic float64 `json:"statistic" yaml:"statistic"`
	DF1       float64 `json:"df1" yaml:"df1"`
	DF2       float64 `json:"df2,omitempty" yaml:"df2,omitempty"`
	PValue    float64 `json:"p_value" yaml:"p_value"`
}

// ANOVARow is one line of an analysis-of-variance table
type ANOVARow struct {
	Source string  `json:"source" yaml:"source"`
	DF     float64 `json:"df" yaml:"df"`
	SumSq  float64 `json:"sum_sq" yaml:"sum_sq"`
	MeanSq float64 `json:"mean_sq" yaml:"mean_sq"`
	F      float64 `json:"f,omitempty" yaml:"f,omitempty"`
	PValue float64 `json:"p_value,omitempty" yaml:"p_value,omitempty"`
}

// GroupMean is a factor level's mean of the modelled response
type GroupMean struct {
	Level string  `json:"level" yaml:"level"`
	N     int     `json:"n" yaml:"n"`
	Mean  float64 `json:"mean" yaml:"mean"`
}

// RandomEffect summarises a random intercept
type RandomEffect struct {
	Group  string    `json:"group" yaml:"group"`
	SD     float64   `json:"sd" yaml:"sd"`
	Levels []string  `json:"levels" yaml:"levels"`
	BLUPs  []float64 `json:"blups" yaml:"blups"`
}

// TermEncoding records how a term entered the design matrix
type TermEncoding struct {
	Term Term `json:"term" yaml:"term"`
	// Levels of a categorical term; the first is the reference and has no column
	Levels []string `json:"levels,omitempty" yaml:"levels,omitempty"`
	// Mean of the transformed values of a numeric term, used as its reference value
	Mean float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
}

// Columns is the number of design columns the term occupies
func (e TermEncoding) Columns() int {
	if e.Term.Categorical {
		return len(e.Levels) - 1
	}
	return 1
}

// FittedModel is the immutable result of one fit
type FittedModel struct {
	ID         core.ModelID `json:"id" yaml:"id"`
	Spec       ModelSpec    `json:"spec" yaml:"spec"`
	Supersedes core.ModelID `json:"supersedes,omitempty" yaml:"supersedes,omitempty"`
	N          int          `json:"n" yaml:"n"`

	Coefficients []Coefficient  `json:"coefficients" yaml:"coefficients"`
	Encodings    []TermEncoding `json:"encodings" yaml:"encodings"`
	Vcov         *mat.SymDense  `json:"-" yaml:"-"`

	Overall ModelTest     `json:"overall" yaml:"overall"`
	ANOVA   []ANOVARow    `json:"anova,omitempty" yaml:"anova,omitempty"`
	Groups  []GroupMean   `json:"groups,omitempty" yaml:"groups,omitempty"`
	Random  *RandomEffect `json:"random,omitempty" yaml:"random,omitempty"`

	Sigma       float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`
	Phi         float64 `json:"phi,omitempty" yaml:"phi,omitempty"`
	DFResidual  float64 `json:"df_residual" yaml:"df_residual"`
	LogLik      float64 `json:"log_lik" yaml:"log_lik"`
	AIC         float64 `json:"aic" yaml:"aic"`
	RSquared    float64 `json:"r_squared,omitempty" yaml:"r_squared,omitempty"`
	AdjRSquared float64 `json:"adj_r_squared,omitempty" yaml:"adj_r_squared,omitempty"`

	// Row-level values on the model scale; Fitted is conditional on random effects
	Response        []float64 `json:"-" yaml:"-"`
	Fitted          []float64 `json:"-" yaml:"-"`
	LinearPredictor []float64 `json:"-" yaml:"-"`
	GroupIndex      []int     `json:"-" yaml:"-"`
	// Rows maps each model row back to its row in the fitted frame
	Rows []int `json:"-" yaml:"-"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Residuals returns response minus conditional fitted values
func (m *FittedModel) Residuals() []float64 {
	out := make([]float64, len(m.Response))
	for i := range m.Response {
		out[i] = m.Response[i] - m.Fitted[i]
	}
	return out
}

// Coefficient looks up a coefficient by term name
func (m *FittedModel) Coefficient(term string) (Coefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Term == term {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Factor returns the single categorical factor of an ANOVA-like model
func (m *FittedModel) Factor() (TermEncoding, bool) {
	if m.Spec.Random != "" || len(m.Encodings) != 1 || !m.Encodings[0].Term.Categorical {
		return TermEncoding{}, false
	}
	return m.Encodings[0], true
}
