package predict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/httpclient"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCalendarFeatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		date    time.Time
		weekday int
		holiday bool
	}{
		{time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), 0, true},    // Monday
		{time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC), 3, true},    // Thursday
		{time.Date(2024, 12, 25, 9, 0, 0, 0, time.UTC), 2, true},  // Wednesday
		{time.Date(2024, 1, 14, 9, 0, 0, 0, time.UTC), 6, false},  // Sunday
		{time.Date(2024, 11, 28, 9, 0, 0, 0, time.UTC), 3, false}, // Thanksgiving is not listed
	}

	for _, tt := range tests {
		if got := Weekday(tt.date); got != tt.weekday {
			t.Errorf("Weekday(%s) = %d, want %d", tt.date.Format("2006-01-02"), got, tt.weekday)
		}
		if got := IsHoliday(tt.date); got != tt.holiday {
			t.Errorf("IsHoliday(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.holiday)
		}
	}
}

type stubWeather struct {
	w   Weather
	err error
}

func (s stubWeather) Current(context.Context, float64, float64) (Weather, error) {
	return s.w, s.err
}

func TestFeatureBuilder_Build(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	f := NewFeatureBuilder(stubWeather{w: Weather{Temperature: -3, Condition: 2}}, discardLogger()).
		Build(context.Background(), 42.96, -85.67, at)
	want := Features{
		DayOfWeek: 0, HourOfDay: 12, Temperature: -3, WeatherCondition: 2,
		UnemploymentRate: 5.2, PovertyRate: 18.5,
	}
	if f != want {
		t.Errorf("features = %+v, want %+v", f, want)
	}

	fallback := NewFeatureBuilder(stubWeather{err: errors.New("down")}, discardLogger()).
		Build(context.Background(), 0, 0, at)
	if fallback.Temperature != 20 || fallback.WeatherCondition != 0 {
		t.Errorf("fallback weather = %v/%v, want 20/0", fallback.Temperature, fallback.WeatherCondition)
	}
}

func TestOpenWeather_Current(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("units") != "metric" || r.URL.Query().Get("appid") != "k" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"main":{"temp":4.5},"weather":[{"main":"Snow"}]}`))
	}))
	t.Cleanup(srv.Close)

	ow := NewOpenWeather(srv.URL, "k", httpclient.NewRetrier(httpclient.New(httpclient.Options{})))
	w, err := ow.Current(context.Background(), 42.9, -85.6)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if w.Temperature != 4.5 || w.Condition != 2 {
		t.Errorf("weather = %+v", w)
	}

	if _, err := NewOpenWeather(srv.URL, "", nil).Current(context.Background(), 0, 0); !errors.Is(err, ErrNoWeatherKey) {
		t.Errorf("missing key err = %v", err)
	}
}

// linearSamples follows demand = 10 + 2*hour - 3*weather exactly.
func linearSamples(n int) []Sample {
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		f := Features{
			DayOfWeek:        i % 7,
			HourOfDay:        i % 24,
			IsHoliday:        0,
			Temperature:      float64(i%13) - 2,
			WeatherCondition: i % 5,
			UnemploymentRate: 5 + float64(i%3)*0.1,
			PovertyRate:      18 + float64(i%4)*0.5,
		}
		out = append(out, Sample{Features: f, Demand: 10 + 2*float64(f.HourOfDay) - 3*float64(f.WeatherCondition)})
	}
	return out
}

func TestTrain_RecoversLinearRelation(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	m, err := Train(linearSamples(500), DefaultSeed, DefaultTestFraction, now)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	if m.TrainSamples != 400 || m.TestSamples != 100 {
		t.Errorf("split = %d/%d, want 400/100", m.TrainSamples, m.TestSamples)
	}
	if m.MSE > 1e-3 {
		t.Errorf("MSE = %v, want ~0", m.MSE)
	}

	got := m.Predict(Features{HourOfDay: 12, WeatherCondition: 1, UnemploymentRate: 5, PovertyRate: 18})
	if math.Abs(got-31) > 0.05 {
		t.Errorf("Predict = %v, want ~31", got)
	}
}

func TestSplit_IsDeterministic(t *testing.T) {
	t.Parallel()

	samples := linearSamples(50)
	_, a := Split(samples, 42, 0.2)
	_, b := Split(samples, 42, 0.2)
	if len(a) != 10 {
		t.Fatalf("test size = %d, want 10", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed produced different splits")
		}
	}
}

func TestTrain_NotEnoughSamples(t *testing.T) {
	t.Parallel()

	if _, err := Train(linearSamples(5), DefaultSeed, DefaultTestFraction, time.Now()); !errors.Is(err, ErrNotEnoughSamples) {
		t.Errorf("err = %v, want ErrNotEnoughSamples", err)
	}
}

func TestPredictor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "models", "demand_model.json")
	builder := NewFeatureBuilder(nil, discardLogger())
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	p := NewPredictor(file, builder)
	if _, err := p.Predict(context.Background(), 42.96, -85.67, at); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("untrained err = %v, want ErrModelNotTrained", err)
	}

	m, err := Train(SyntheticSamples(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		DefaultSeed,
	), DefaultSeed, DefaultTestFraction, at)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if err := m.Save(file); err != nil {
		t.Fatalf("Save: %v", err)
	}

	pred, err := NewPredictor(file, builder).Predict(context.Background(), 42.96, -85.67, at)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	// Synthetic demand is centered on 50.
	if pred.Demand < 30 || pred.Demand > 70 {
		t.Errorf("Demand = %v, want near 50", pred.Demand)
	}
	if pred.Features.Temperature != 20 {
		t.Errorf("Temperature = %v, want default 20", pred.Features.Temperature)
	}
}

func TestReadSamplesCSV(t *testing.T) {
	t.Parallel()

	in := "date,day_of_week,hour_of_day,is_holiday,temperature,weather_condition,unemployment_rate,poverty_rate,demand\n" +
		"2024-01-01T09:00,0,9,1,-2.5,2,5.2,18.5,61\n" +
		"2024-01-01T10:00,0,10,1,-1.0,3,5.2,18.5,58.5\n"

	samples, err := ReadSamplesCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadSamplesCSV: %v", err)
	}
	if len(samples) != 2 || samples[0].Temperature != -2.5 || samples[1].Demand != 58.5 || samples[0].IsHoliday != 1 {
		t.Errorf("samples = %+v", samples)
	}

	if _, err := ReadSamplesCSV(strings.NewReader("day_of_week,demand\n1,2\n")); err == nil {
		t.Error("missing columns should fail")
	}
	bad := strings.Replace(in, "-2.5", "cold", 1)
	if _, err := ReadSamplesCSV(strings.NewReader(bad)); err == nil {
		t.Error("non-numeric value should fail")
	}
}
