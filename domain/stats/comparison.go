package stats

import "perchmp/domain/core"

// PairDifference is one pairwise group contrast, B minus A
type PairDifference struct {
	A           string  `json:"a" yaml:"a"`
	B           string  `json:"b" yaml:"b"`
	Diff        float64 `json:"diff" yaml:"diff"`
	StdErr      float64 `json:"std_err" yaml:"std_err"`
	Lower       float64 `json:"lower" yaml:"lower"`
	Upper       float64 `json:"upper" yaml:"upper"`
	PAdj        float64 `json:"p_adj" yaml:"p_adj"`
	Significant bool    `json:"significant" yaml:"significant"`
}

// PairwiseComparison holds all C(k,2) contrasts derived from one fitted model
type PairwiseComparison struct {
	Model  core.ModelID     `json:"model" yaml:"model"`
	Factor string           `json:"factor" yaml:"factor"`
	Method string           `json:"method" yaml:"method"`
	Alpha  float64          `json:"alpha" yaml:"alpha"`
	Means  []GroupMean      `json:"means" yaml:"means"`
	Pairs  []PairDifference `json:"pairs" yaml:"pairs"`
}

// Significant reports whether levels a and b differ; unknown pairs are not significant
func (c *PairwiseComparison) Significant(a, b string) bool {
	for _, p := range c.Pairs {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			return p.Significant
		}
	}
	return false
}

// GroupLetters is the compact letter display of one level
type GroupLetters struct {
	Level   string  `json:"level" yaml:"level"`
	Mean    float64 `json:"mean" yaml:"mean"`
	Letters string  `json:"letters" yaml:"letters"`
}

// Prediction is one point of a marginal prediction curve on the response scale
type Prediction struct {
	Value  float64 `json:"value" yaml:"value"`
	Fit    float64 `json:"fit" yaml:"fit"`
	StdErr float64 `json:"std_err" yaml:"std_err"` // on the link / transformed scale
	Lower  float64 `json:"lower" yaml:"lower"`
	Upper  float64 `json:"upper" yaml:"upper"`
}

// PredictionSet is a model-implied trend over one covariate
type PredictionSet struct {
	Model  core.ModelID      `json:"model" yaml:"model"`
	Column string            `json:"column" yaml:"column"`
	Held   map[string]string `json:"held" yaml:"held"`
	Level  float64           `json:"level" yaml:"level"`
	Points []Prediction      `json:"points" yaml:"points"`
}
