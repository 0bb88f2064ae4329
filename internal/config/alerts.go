package config

import "time"

// AlertConfig configures threshold alerts and their delivery channels.
// Thresholds of 0 disable the corresponding check.
type AlertConfig struct {
	AlertsEnabled      bool          `env:"ALERTS_ENABLED" envDefault:"true"`
	AlertCheckInterval time.Duration `env:"ALERT_CHECK_INTERVAL" envDefault:"60s"`

	ErrorRateThreshold float64 `env:"ERROR_RATE_THRESHOLD" envDefault:"0.05"`
	// Seconds.
	LatencyThreshold               float64 `env:"LATENCY_THRESHOLD" envDefault:"2.0"`
	DataCollectionFailureThreshold float64 `env:"DATA_COLLECTION_FAILURE_THRESHOLD" envDefault:"0.1"`

	SlackAlertsEnabled bool   `env:"ENABLE_SLACK_ALERTS" envDefault:"false"`
	SlackWebhookURL    string `env:"SLACK_WEBHOOK_URL"`

	EmailAlertsEnabled bool   `env:"ENABLE_EMAIL_ALERTS" envDefault:"false"`
	SMTPHost           string `env:"SMTP_HOST"`
	SMTPPort           int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername       string `env:"SMTP_USERNAME"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
	AlertEmailFrom     string `env:"ALERT_EMAIL_FROM"`
	AlertEmailTo       string `env:"ALERT_EMAIL_TO"`

	// Optional signed JSON webhook.
	AlertWebhookURL    string `env:"ALERT_WEBHOOK_URL"`
	AlertWebhookSecret string `env:"ALERT_WEBHOOK_SECRET"`
}

// EmailRecipients splits ALERT_EMAIL_TO on commas.
func (c AlertConfig) EmailRecipients() []string {
	return splitList(c.AlertEmailTo)
}
