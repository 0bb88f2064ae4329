// Package alert checks recorded metrics against thresholds and notifies the
// configured channels when one is crossed.
package alert

import (
	"fmt"
	"time"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/metrics"
)

// Alert types.
const (
	TypeHighErrorRate         = "HighErrorRate"
	TypeHighLatency           = "HighLatency"
	TypeHighAPILatency        = "HighAPILatency"
	TypeDataCollectionFailure = "DataCollectionFailure"
)

// Alert is one crossed threshold.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	FiredAt   time.Time `json:"fired_at"`
}

// Thresholds bound the rates observed between two checks. Zero disables a
// check.
type Thresholds struct {
	// ErrorRate is the share of API requests answered with 5xx.
	ErrorRate float64
	// Latency bounds the mean API request and feed processing durations.
	Latency time.Duration
	// DataCollectionFailure is the share of failed feed collections.
	DataCollectionFailure float64
}

// ThresholdsFromConfig maps the alert configuration onto Thresholds.
func ThresholdsFromConfig(cfg config.AlertConfig) Thresholds {
	return Thresholds{
		ErrorRate:             cfg.ErrorRateThreshold,
		Latency:               time.Duration(cfg.LatencyThreshold * float64(time.Second)),
		DataCollectionFailure: cfg.DataCollectionFailureThreshold,
	}
}

// Evaluate compares the activity between prev and cur against th. Alerts
// carry no ID or source; the Monitor fills them in.
func Evaluate(prev, cur metrics.Snapshot, th Thresholds, now time.Time) []Alert {
	var out []Alert
	fire := func(typ string, value, threshold float64, msg string) {
		out = append(out, Alert{Type: typ, Message: msg, Value: value, Threshold: threshold, FiredAt: now})
	}

	requests := cur.APIRequests - prev.APIRequests
	if requests > 0 {
		if th.ErrorRate > 0 {
			rate := float64(cur.APIErrors-prev.APIErrors) / float64(requests)
			if rate > th.ErrorRate {
				fire(TypeHighErrorRate, rate, th.ErrorRate,
					fmt.Sprintf("Error rate (%.2f) exceeds threshold (%.2f)", rate, th.ErrorRate))
			}
		}
		if th.Latency > 0 {
			mean := time.Duration((cur.APIDurationTotalNs - prev.APIDurationTotalNs) / int64(requests))
			if mean > th.Latency {
				fire(TypeHighAPILatency, mean.Seconds(), th.Latency.Seconds(),
					fmt.Sprintf("API latency (%.2fs) exceeds threshold (%.2fs)", mean.Seconds(), th.Latency.Seconds()))
			}
		}
	}

	if processed := cur.ProcessingCount - prev.ProcessingCount; processed > 0 && th.Latency > 0 {
		mean := time.Duration((cur.ProcessingTotalNs - prev.ProcessingTotalNs) / int64(processed))
		if mean > th.Latency {
			fire(TypeHighLatency, mean.Seconds(), th.Latency.Seconds(),
				fmt.Sprintf("Processing latency (%.2fs) exceeds threshold (%.2fs)", mean.Seconds(), th.Latency.Seconds()))
		}
	}

	failed := cur.CollectionFailures - prev.CollectionFailures
	total := failed + cur.CollectionSuccesses - prev.CollectionSuccesses
	if total > 0 && th.DataCollectionFailure > 0 {
		rate := float64(failed) / float64(total)
		if rate > th.DataCollectionFailure {
			fire(TypeDataCollectionFailure, rate, th.DataCollectionFailure,
				fmt.Sprintf("Data collection failure rate (%.2f) exceeds threshold (%.2f)", rate, th.DataCollectionFailure))
		}
	}

	return out
}
