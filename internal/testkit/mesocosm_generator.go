package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"perchmp/domain/mesocosm"
)

// CorralSpec is one simulated mesocosm
type CorralSpec struct {
	ID            string  `json:"id"`
	Concentration float64 `json:"concentration"`
}

// MesocosmGeneratorConfig configures the synthetic experiment
type MesocosmGeneratorConfig struct {
	Corrals       []CorralSpec `json:"corrals"`
	FishPerCorral int          `json:"fish_per_corral"`
	// NonTargetRate is the share of rows for other species, written without a length
	NonTargetRate float64 `json:"non_target_rate"`
	// Length model: log(TL) = log(BaseLength) + LengthSlope*log1p(conc) + corral + noise
	BaseLength  float64 `json:"base_length"`
	LengthSlope float64 `json:"length_slope"`
	CorralSD    float64 `json:"corral_sd"`
	ResidualSD  float64 `json:"residual_sd"`
	// ConditionK is Fulton's K used to derive body weight from length
	ConditionK float64 `json:"condition_k"`
	StartCount int     `json:"start_count"`
	// Survival on the logit scale: SurvivalBase + SurvivalSlope*log1p(conc)
	SurvivalBase  float64 `json:"survival_base"`
	SurvivalSlope float64 `json:"survival_slope"`
	// MissingWeightRate blanks body and gonad weight for some fish
	MissingWeightRate float64 `json:"missing_weight_rate"`
	Seed              int64   `json:"seed"`
}

// DefaultMesocosmConfig mirrors the experiment layout: eight corrals, two per
// concentration, with two independent controls
func DefaultMesocosmConfig() MesocosmGeneratorConfig {
	return MesocosmGeneratorConfig{
		Corrals: []CorralSpec{
			{"A", 50}, {"B", 0}, {"C", 10}, {"D", 200},
			{"E", 10}, {"F", 200}, {"G", 50}, {"H", 0},
		},
		FishPerCorral:     15,
		NonTargetRate:     0.05,
		BaseLength:        9.5,
		LengthSlope:       -0.02,
		CorralSD:          0.03,
		ResidualSD:        0.08,
		ConditionK:        0.0105,
		StartCount:        20,
		SurvivalBase:      1.8,
		SurvivalSlope:     -0.15,
		MissingWeightRate: 0.03,
		Seed:              42,
	}
}

// MesocosmDataGenerator generates perch biometrics and mesocosm counts
type MesocosmDataGenerator struct {
	config MesocosmGeneratorConfig
	rng    *rand.Rand
}

// NewMesocosmDataGenerator creates a new generator
func NewMesocosmDataGenerator(config MesocosmGeneratorConfig) *MesocosmDataGenerator {
	return &MesocosmDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns fish observations in corral order and one population row per corral
func (g *MesocosmDataGenerator) Generate() ([]mesocosm.Observation, []mesocosm.Population) {
	var obs []mesocosm.Observation
	pops := make([]mesocosm.Population, 0, len(g.config.Corrals))

	for _, c := range g.config.Corrals {
		dose := math.Log1p(c.Concentration)
		effect := g.rng.NormFloat64() * g.config.CorralSD
		for i := 0; i < g.config.FishPerCorral; i++ {
			obs = append(obs, g.fish(c, dose, effect))
		}

		p := 1 / (1 + math.Exp(-(g.config.SurvivalBase + g.config.SurvivalSlope*dose)))
		end := 0
		for i := 0; i < g.config.StartCount; i++ {
			if g.rng.Float64() < p {
				end++
			}
		}
		pops = append(pops, mesocosm.Population{
			Corral:        c.ID,
			Start:         float64(g.config.StartCount),
			End:           float64(end),
			Concentration: c.Concentration,
		})
	}
	return obs, pops
}

func (g *MesocosmDataGenerator) fish(c CorralSpec, dose, effect float64) mesocosm.Observation {
	o := mesocosm.Observation{Corral: c.ID, Concentration: c.Concentration}
	if g.rng.Float64() < g.config.NonTargetRate {
		// bycatch: weighed but not measured
		o.BodyWeight = 2 + g.rng.Float64()*3
		o.TotalLength, o.ForkLength, o.GonadWeight = math.NaN(), math.NaN(), math.NaN()
		return o
	}

	logTL := math.Log(g.config.BaseLength) + g.config.LengthSlope*dose + effect + g.rng.NormFloat64()*g.config.ResidualSD
	o.TotalLength = round(math.Exp(logTL), 1)
	o.ForkLength = round(o.TotalLength*(0.93+g.rng.Float64()*0.02), 1)
	o.BodyWeight = round(g.config.ConditionK*math.Pow(o.TotalLength, 3)*math.Exp(g.rng.NormFloat64()*0.05), 2)
	o.GonadWeight = round(0.004*o.BodyWeight*o.TotalLength/g.config.BaseLength*math.Exp(g.rng.NormFloat64()*0.2), 3)
	if g.rng.Float64() < g.config.MissingWeightRate {
		o.BodyWeight, o.GonadWeight = math.NaN(), math.NaN()
	}
	return o
}

// WriteCSV generates the experiment and writes the biometrics and population files into
// dir with the input column names
func (g *MesocosmDataGenerator) WriteCSV(dir string) (biometricsPath, populationPath string, err error) {
	obs, pops := g.Generate()
	biometricsPath = filepath.Join(dir, "perch_biometrics.csv")
	populationPath = filepath.Join(dir, "perch_mesocosm.csv")

	header := []string{mesocosm.ColCorral, mesocosm.ColConcentration, mesocosm.ColBodyWeight,
		mesocosm.ColTotalLength, mesocosm.ColForkLength, mesocosm.ColGonadWeight}
	rows := make([][]string, len(obs))
	for i, o := range obs {
		rows[i] = []string{o.Corral, format(o.Concentration), format(o.BodyWeight),
			format(o.TotalLength), format(o.ForkLength), format(o.GonadWeight)}
	}
	if err := writeCSV(biometricsPath, header, rows); err != nil {
		return "", "", err
	}

	header = []string{mesocosm.ColCorral, mesocosm.ColConcentration, mesocosm.ColStart, mesocosm.ColEnd}
	rows = make([][]string, len(pops))
	for i, p := range pops {
		rows[i] = []string{p.Corral, format(p.Concentration), format(p.Start), format(p.End)}
	}
	if err := writeCSV(populationPath, header, rows); err != nil {
		return "", "", err
	}
	return biometricsPath, populationPath, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// format writes missing values the way R does
func format(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
