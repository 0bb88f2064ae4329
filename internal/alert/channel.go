package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/httpclient"
)

// Webhook headers.
const (
	HeaderSignature = "X-Pantrynav-Signature"
	HeaderTimestamp = "X-Pantrynav-Timestamp"
	HeaderAlertID   = "X-Pantrynav-Alert-Id"

	userAgent = "PantryNav-Alerts/1.0"
)

// ErrChannelConfig is returned for an enabled channel missing its settings.
var ErrChannelConfig = errors.New("alert channel misconfigured")

// Channel delivers an alert somewhere.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}" under secret.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// postJSON sends body to url through r; extra sets additional headers.
func postJSON(ctx context.Context, r *httpclient.Retrier, url string, body []byte, extra func(h http.Header)) error {
	resp, err := r.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if extra != nil {
			extra(req.Header)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// SlackChannel posts to a Slack incoming webhook.
type SlackChannel struct {
	URL     string
	Retrier *httpclient.Retrier
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf(":rotating_light: *%s* (%s)\n%s", a.Type, a.Source, a.Message),
	})
	if err != nil {
		return err
	}
	if err := postJSON(ctx, s.Retrier, s.URL, body, nil); err != nil {
		// The webhook URL is the credential.
		return errors.New(strings.ReplaceAll(err.Error(), s.URL, "[slack webhook]"))
	}
	return nil
}

// WebhookChannel posts the alert as JSON, signed with Secret when set.
type WebhookChannel struct {
	URL     string
	Secret  string
	Retrier *httpclient.Retrier
	now     func() time.Time
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	ts := now().Unix()
	return postJSON(ctx, w.Retrier, w.URL, body, func(h http.Header) {
		h.Set(HeaderAlertID, a.ID)
		h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		if w.Secret != "" {
			h.Set(HeaderSignature, Sign(w.Secret, ts, body))
		}
	})
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends a plain-text mail through an SMTP relay.
type EmailChannel struct {
	Addr string
	Auth smtp.Auth
	From string
	To   []string
	// SendMail defaults to smtp.SendMail.
	SendMail SendMailFunc
}

func (e *EmailChannel) Name() string { return "email" }

// Send ignores ctx: net/smtp has no context support.
func (e *EmailChannel) Send(_ context.Context, a Alert) error {
	send := e.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&msg, "Subject: [pantrynav] %s alert from %s\r\n", a.Type, a.Source)
	fmt.Fprintf(&msg, "Date: %s\r\n", a.FiredAt.Format(time.RFC1123Z))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\nvalue: %.4f\r\nthreshold: %.4f\r\nalert id: %s\r\n", a.Message, a.Value, a.Threshold, a.ID)
	if err := send(e.Addr, e.Auth, e.From, e.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("send alert mail via %s: %w", e.Addr, err)
	}
	return nil
}

// ChannelsFromConfig builds the enabled channels.
func ChannelsFromConfig(cfg config.AlertConfig, retrier *httpclient.Retrier) ([]Channel, error) {
	var out []Channel
	if cfg.SlackAlertsEnabled {
		if cfg.SlackWebhookURL == "" {
			return nil, fmt.Errorf("%w: ENABLE_SLACK_ALERTS without SLACK_WEBHOOK_URL", ErrChannelConfig)
		}
		out = append(out, &SlackChannel{URL: cfg.SlackWebhookURL, Retrier: retrier})
	}
	if cfg.EmailAlertsEnabled {
		to := cfg.EmailRecipients()
		if cfg.SMTPHost == "" || cfg.AlertEmailFrom == "" || len(to) == 0 {
			return nil, fmt.Errorf("%w: ENABLE_EMAIL_ALERTS needs SMTP_HOST, ALERT_EMAIL_FROM and ALERT_EMAIL_TO", ErrChannelConfig)
		}
		ch := &EmailChannel{
			Addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
			From: cfg.AlertEmailFrom,
			To:   to,
		}
		if cfg.SMTPUsername != "" {
			ch.Auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
		}
		out = append(out, ch)
	}
	if cfg.AlertWebhookURL != "" {
		out = append(out, &WebhookChannel{URL: cfg.AlertWebhookURL, Secret: cfg.AlertWebhookSecret, Retrier: retrier})
	}
	return out, nil
}
