package predict

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Model errors.
var (
	ErrModelNotTrained  = errors.New("model not found, train the model first")
	ErrNotEnoughSamples = errors.New("not enough training samples")
	ErrNoWeatherKey     = errors.New("weather API key not configured")
)

const (
	// DefaultSeed makes the train/test split reproducible.
	DefaultSeed = 42
	// DefaultTestFraction is the share of samples held out for evaluation.
	DefaultTestFraction = 0.2

	// ridge keeps the normal equations solvable when a feature is constant
	// in the training split, e.g. is_holiday over a month without holidays.
	ridge = 1e-6
)

// Sample is one observed demand value with its features.
type Sample struct {
	Features
	Demand float64 `json:"demand"`
}

// Model is an ordinary least squares fit over FeatureNames.
type Model struct {
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	MSE          float64   `json:"mse"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Predict returns the demand estimate for f.
func (m *Model) Predict(f Features) float64 {
	y := m.Intercept
	for i, x := range f.Vector() {
		if i < len(m.Coefficients) {
			y += m.Coefficients[i] * x
		}
	}
	return y
}

// MeanSquaredError evaluates m over samples.
func (m *Model) MeanSquaredError(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		d := m.Predict(s.Features) - s.Demand
		sum += d * d
	}
	return sum / float64(len(samples))
}

// Split shuffles samples with seed and holds out testFraction of them.
func Split(samples []Sample, seed int64, testFraction float64) (train, test []Sample) {
	shuffled := make([]Sample, len(samples))
	copy(shuffled, samples)
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	nTest := int(math.Ceil(float64(len(shuffled)) * testFraction))
	if nTest >= len(shuffled) {
		nTest = len(shuffled) - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return shuffled[nTest:], shuffled[:nTest]
}

// Train splits samples, fits the training part and reports the MSE on the
// held-out part.
func Train(samples []Sample, seed int64, testFraction float64, now time.Time) (*Model, error) {
	train, test := Split(samples, seed, testFraction)
	if len(train) <= len(FeatureNames) {
		return nil, fmt.Errorf("%w: have %d, need more than %d", ErrNotEnoughSamples, len(train), len(FeatureNames))
	}

	m, err := Fit(train)
	if err != nil {
		return nil, err
	}
	m.TrainSamples = len(train)
	m.TestSamples = len(test)
	m.MSE = m.MeanSquaredError(test)
	m.TrainedAt = now.UTC()
	return m, nil
}

// Fit solves the normal equations (XᵀX + λI)β = Xᵀy over samples, with a
// leading column of ones for the intercept.
func Fit(samples []Sample) (*Model, error) {
	n, p := len(samples), len(FeatureNames)+1
	if n == 0 {
		return nil, ErrNotEnoughSamples
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, s := range samples {
		x.Set(i, 0, 1)
		for j, v := range s.Vector() {
			x.Set(i, j+1, v)
		}
		y.SetVec(i, s.Demand)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 1; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("failed to fit model: %w", err)
		}
		// An ill-conditioned system still yields a usable solution.
	}

	m := &Model{
		Features:     append([]string(nil), FeatureNames...),
		Intercept:    beta.AtVec(0),
		Coefficients: make([]float64, p-1),
	}
	for j := 1; j < p; j++ {
		m.Coefficients[j-1] = beta.AtVec(j)
	}
	return m, nil
}

// Save writes the model as indented JSON, creating parent directories.
func (m *Model) Save(file string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// LoadModel reads a saved model. A missing file is ErrModelNotTrained.
func LoadModel(file string) (*Model, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrModelNotTrained
		}
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(m.Coefficients) != len(FeatureNames) {
		return nil, fmt.Errorf("model has %d coefficients, want %d", len(m.Coefficients), len(FeatureNames))
	}
	return &m, nil
}

// SyntheticSamples generates hourly mock observations between start and end
// (inclusive), for bootstrapping a model before real demand data exists.
func SyntheticSamples(start, end time.Time, seed int64) []Sample {
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	conditions := []int{0, 1, 2, 3, 4}

	var out []Sample
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		holiday := 0
		if IsHoliday(t) {
			holiday = 1
		}
		out = append(out, Sample{
			Features: Features{
				DayOfWeek:        Weekday(t),
				HourOfDay:        t.Hour(),
				IsHoliday:        holiday,
				Temperature:      15 + 5*rng.NormFloat64(),
				WeatherCondition: conditions[rng.IntN(len(conditions))],
				UnemploymentRate: DefaultUnemploymentRate + 0.5*rng.NormFloat64(),
				PovertyRate:      DefaultPovertyRate + 2*rng.NormFloat64(),
			},
			Demand: 50 + 10*rng.NormFloat64(),
		})
	}
	return out
}

// ReadSamplesCSV reads samples from CSV with a header naming every feature
// column plus "demand". Extra columns are ignored.
func ReadSamplesCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	for _, name := range append(append([]string(nil), FeatureNames...), "demand") {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		num := func(col string) (float64, error) {
			v, err := strconv.ParseFloat(row[index[col]], 64)
			if err != nil {
				return 0, fmt.Errorf("line %d column %s: %w", line, col, err)
			}
			return v, nil
		}

		vals := make(map[string]float64, len(FeatureNames)+1)
		for _, col := range append(append([]string(nil), FeatureNames...), "demand") {
			v, err := num(col)
			if err != nil {
				return nil, err
			}
			vals[col] = v
		}

		out = append(out, Sample{
			Features: Features{
				DayOfWeek:        int(vals["day_of_week"]),
				HourOfDay:        int(vals["hour_of_day"]),
				IsHoliday:        int(vals["is_holiday"]),
				Temperature:      vals["temperature"],
				WeatherCondition: int(vals["weather_condition"]),
				UnemploymentRate: vals["unemployment_rate"],
				PovertyRate:      vals["poverty_rate"],
			},
			Demand: vals["demand"],
		})
	}
	return out, nil
}
