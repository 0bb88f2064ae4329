// Package predict estimates visitor demand at a location and time from
// calendar, weather and socioeconomic features with a linear model.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/httpclient"
)

// Socioeconomic defaults for Grand Rapids.
const (
	DefaultUnemploymentRate = 5.2
	DefaultPovertyRate      = 18.5
)

// WeatherConditions encodes the main OpenWeatherMap condition. Anything else
// counts as clear.
var WeatherConditions = map[string]int{
	"clear":        0,
	"rain":         1,
	"snow":         2,
	"cloudy":       3,
	"thunderstorm": 4,
}

// FeatureNames lists the model inputs in vector order.
var FeatureNames = []string{
	"day_of_week",
	"hour_of_day",
	"is_holiday",
	"temperature",
	"weather_condition",
	"unemployment_rate",
	"poverty_rate",
}

// Features are the model inputs for one location and hour.
type Features struct {
	// DayOfWeek is 0 for Monday through 6 for Sunday.
	DayOfWeek        int     `json:"day_of_week"`
	HourOfDay        int     `json:"hour_of_day"`
	IsHoliday        int     `json:"is_holiday"`
	Temperature      float64 `json:"temperature"`
	WeatherCondition int     `json:"weather_condition"`
	UnemploymentRate float64 `json:"unemployment_rate"`
	PovertyRate      float64 `json:"poverty_rate"`
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		float64(f.DayOfWeek),
		float64(f.HourOfDay),
		float64(f.IsHoliday),
		f.Temperature,
		float64(f.WeatherCondition),
		f.UnemploymentRate,
		f.PovertyRate,
	}
}

// IsHoliday reports whether t falls on New Year's Day, Independence Day or
// Christmas Day.
func IsHoliday(t time.Time) bool {
	switch {
	case t.Month() == time.January && t.Day() == 1,
		t.Month() == time.July && t.Day() == 4,
		t.Month() == time.December && t.Day() == 25:
		return true
	}
	return false
}

// Weekday returns t's day of week with Monday as 0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Weather is the part of current conditions the model uses.
type Weather struct {
	Temperature float64
	Condition   int
}

// DefaultWeather is used when conditions cannot be fetched.
var DefaultWeather = Weather{Temperature: 20, Condition: 0}

// WeatherSource returns current conditions at a point.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (Weather, error)
}

// OpenWeather reads current conditions from the OpenWeatherMap API.
type OpenWeather struct {
	url     string
	apiKey  string
	retrier *httpclient.Retrier
}

// NewOpenWeather creates a weather source for the endpoint at apiURL.
func NewOpenWeather(apiURL, apiKey string, retrier *httpclient.Retrier) *OpenWeather {
	return &OpenWeather{url: apiURL, apiKey: apiKey, retrier: retrier}
}

type openWeatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

// Current fetches conditions in metric units.
func (o *OpenWeather) Current(ctx context.Context, lat, lon float64) (Weather, error) {
	if o.apiKey == "" {
		return Weather{}, ErrNoWeatherKey
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", o.apiKey)
	params.Set("units", "metric")

	var resp openWeatherResponse
	if err := o.retrier.GetJSON(ctx, o.url+"?"+params.Encode(), nil, &resp); err != nil {
		return Weather{}, fmt.Errorf("failed to fetch weather: %s", strings.ReplaceAll(err.Error(), o.apiKey, "[redacted]"))
	}

	w := Weather{Temperature: resp.Main.Temp}
	if len(resp.Weather) > 0 {
		w.Condition = WeatherConditions[strings.ToLower(resp.Weather[0].Main)]
	}
	return w, nil
}

// FeatureBuilder assembles Features for a location and time.
type FeatureBuilder struct {
	weather WeatherSource
	logger  *slog.Logger
}

// NewFeatureBuilder creates a builder. weather may be nil, in which case
// DefaultWeather is always used.
func NewFeatureBuilder(weather WeatherSource, logger *slog.Logger) *FeatureBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureBuilder{
		weather: weather,
		logger:  logger.With("component", "predict.features"),
	}
}

// Build returns the features for lat/lon at t. Weather failures fall back to
// DefaultWeather.
func (b *FeatureBuilder) Build(ctx context.Context, lat, lon float64, t time.Time) Features {
	w := DefaultWeather
	if b.weather != nil {
		got, err := b.weather.Current(ctx, lat, lon)
		if err != nil {
			b.logger.Warn("using default weather", "error", err)
		} else {
			w = got
		}
	}

	holiday := 0
	if IsHoliday(t) {
		holiday = 1
	}

	return Features{
		DayOfWeek:        Weekday(t),
		HourOfDay:        t.Hour(),
		IsHoliday:        holiday,
		Temperature:      w.Temperature,
		WeatherCondition: w.Condition,
		UnemploymentRate: DefaultUnemploymentRate,
		PovertyRate:      DefaultPovertyRate,
	}
}
