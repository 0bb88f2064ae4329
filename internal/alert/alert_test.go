package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/metrics"
)

var (
	testThresholds = Thresholds{ErrorRate: 0.05, Latency: 2 * time.Second, DataCollectionFailure: 0.1}
	fixedNow       = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleepRetrier() *httpclient.Retrier {
	r := httpclient.NewRetrier(httpclient.New(httpclient.Options{Timeout: 5 * time.Second}))
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	ms := func(n int64) int64 { return n * int64(time.Millisecond) }

	tests := []struct {
		name string
		cur  metrics.Snapshot
		th   Thresholds
		want []string
	}{
		{name: "idle", want: nil},
		{
			name: "healthy api",
			cur:  metrics.Snapshot{APIRequests: 100, APIErrors: 2, APIDurationTotalNs: ms(100 * 50)},
			th:   testThresholds,
		},
		{
			name: "error rate",
			cur:  metrics.Snapshot{APIRequests: 100, APIErrors: 6, APIDurationTotalNs: ms(100 * 50)},
			th:   testThresholds,
			want: []string{TypeHighErrorRate},
		},
		{
			name: "slow api",
			cur:  metrics.Snapshot{APIRequests: 4, APIDurationTotalNs: ms(4 * 2500)},
			th:   testThresholds,
			want: []string{TypeHighAPILatency},
		},
		{
			name: "slow processing",
			cur:  metrics.Snapshot{ProcessingCount: 2, ProcessingTotalNs: ms(2 * 3000)},
			th:   testThresholds,
			want: []string{TypeHighLatency},
		},
		{
			name: "collection failures",
			cur:  metrics.Snapshot{CollectionSuccesses: 8, CollectionFailures: 2},
			th:   testThresholds,
			want: []string{TypeDataCollectionFailure},
		},
		{
			name: "at threshold",
			cur:  metrics.Snapshot{CollectionSuccesses: 9, CollectionFailures: 1},
			th:   testThresholds,
		},
		{
			name: "disabled thresholds",
			cur:  metrics.Snapshot{APIRequests: 1, APIErrors: 1, CollectionFailures: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Evaluate(metrics.Snapshot{}, tt.cur, tt.th, fixedNow)
			var types []string
			for _, a := range got {
				types = append(types, a.Type)
				if !a.FiredAt.Equal(fixedNow) || a.Message == "" {
					t.Errorf("alert = %+v", a)
				}
			}
			if strings.Join(types, ",") != strings.Join(tt.want, ",") {
				t.Errorf("types = %v, want %v", types, tt.want)
			}
		})
	}
}

func TestEvaluate_UsesDelta(t *testing.T) {
	t.Parallel()

	// Old errors must not count against the current interval.
	prev := metrics.Snapshot{APIRequests: 100, APIErrors: 50}
	cur := metrics.Snapshot{APIRequests: 200, APIErrors: 51}
	if got := Evaluate(prev, cur, testThresholds, fixedNow); len(got) != 0 {
		t.Errorf("alerts = %+v, want none", got)
	}

	a := Evaluate(metrics.Snapshot{}, metrics.Snapshot{APIRequests: 10, APIErrors: 3}, testThresholds, fixedNow)
	if len(a) != 1 || a[0].Message != "Error rate (0.30) exceeds threshold (0.05)" {
		t.Errorf("alerts = %+v", a)
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"HighErrorRate"}`)
	sig := Sign("s3cret", 1714564800, body)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("1714564800." + string(body)))
	if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
		t.Errorf("Sign() = %s, want %s", sig, want)
	}
	if Sign("s3cret", 1714564801, body) == sig {
		t.Error("timestamp not covered by signature")
	}
	if Sign("other", 1714564800, body) == sig {
		t.Error("secret not covered by signature")
	}
}

func TestWebhookChannel_Send(t *testing.T) {
	t.Parallel()

	var (
		gotHeader http.Header
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	ch := &WebhookChannel{URL: srv.URL, Secret: "whsec", Retrier: noSleepRetrier(), now: func() time.Time { return fixedNow }}
	a := Alert{ID: "01HXYZ", Type: TypeHighLatency, Source: "collector", Message: "slow", FiredAt: fixedNow}
	if err := ch.Send(context.Background(), a); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	if gotHeader.Get(HeaderTimestamp) != ts || gotHeader.Get(HeaderAlertID) != "01HXYZ" {
		t.Errorf("headers = %v", gotHeader)
	}
	if gotHeader.Get(HeaderSignature) != Sign("whsec", fixedNow.Unix(), gotBody) {
		t.Error("signature does not match body")
	}
	var decoded Alert
	if err := json.Unmarshal(gotBody, &decoded); err != nil || decoded.Type != TypeHighLatency {
		t.Errorf("body = %s, %v", gotBody, err)
	}
}

func TestSlackChannel_ErrorHidesURL(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	url := srv.URL + "/services/T000/B000/XXXX"
	ch := &SlackChannel{URL: url, Retrier: noSleepRetrier()}
	err := ch.Send(context.Background(), Alert{Type: TypeHighErrorRate, Source: "api", Message: "Error rate (0.30) exceeds threshold (0.05)"})
	if err == nil {
		t.Fatal("Send() error = nil, want 403")
	}
	if strings.Contains(err.Error(), "XXXX") {
		t.Errorf("webhook URL leaked: %v", err)
	}
	if !strings.Contains(got["text"], "HighErrorRate") || !strings.Contains(got["text"], "Error rate (0.30)") {
		t.Errorf("text = %q", got["text"])
	}
}

func TestEmailChannel_Send(t *testing.T) {
	t.Parallel()

	var (
		addr, from string
		to         []string
		msg        string
	)
	ch := &EmailChannel{
		Addr: "smtp.example.org:587",
		From: "alerts@example.org",
		To:   []string{"ops@example.org", "dev@example.org"},
		SendMail: func(a string, _ smtp.Auth, f string, rcpt []string, m []byte) error {
			addr, from, to, msg = a, f, rcpt, string(m)
			return nil
		},
	}
	a := Alert{ID: "01HXYZ", Type: TypeDataCollectionFailure, Source: "collector", Message: "Data collection failure rate (0.50) exceeds threshold (0.10)", FiredAt: fixedNow}
	if err := ch.Send(context.Background(), a); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if addr != "smtp.example.org:587" || from != "alerts@example.org" || len(to) != 2 {
		t.Errorf("envelope = %s %s %v", addr, from, to)
	}
	for _, want := range []string{
		"Subject: [pantrynav] DataCollectionFailure alert from collector\r\n",
		"To: ops@example.org, dev@example.org\r\n",
		"\r\n\r\nData collection failure rate (0.50)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	ch.SendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }
	if err := ch.Send(context.Background(), a); err == nil || !strings.Contains(err.Error(), "relay denied") {
		t.Errorf("err = %v", err)
	}
}

func TestChannelsFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.AlertConfig
		want    []string
		wantErr bool
	}{
		{name: "none"},
		{
			name: "all",
			cfg: config.AlertConfig{
				SlackAlertsEnabled: true, SlackWebhookURL: "https://hooks.slack.test/x",
				EmailAlertsEnabled: true, SMTPHost: "smtp.test", SMTPPort: 25,
				AlertEmailFrom: "a@test", AlertEmailTo: "b@test, c@test",
				AlertWebhookURL: "https://ops.test/alerts",
			},
			want: []string{"slack", "email", "webhook"},
		},
		{name: "slack without url", cfg: config.AlertConfig{SlackAlertsEnabled: true}, wantErr: true},
		{name: "email without recipients", cfg: config.AlertConfig{EmailAlertsEnabled: true, SMTPHost: "smtp.test", AlertEmailFrom: "a@test"}, wantErr: true},
		{name: "url without flag", cfg: config.AlertConfig{SlackWebhookURL: "https://hooks.slack.test/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chs, err := ChannelsFromConfig(tt.cfg, noSleepRetrier())
			if tt.wantErr {
				if !errors.Is(err, ErrChannelConfig) {
					t.Fatalf("err = %v, want ErrChannelConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var names []string
			for _, ch := range chs {
				names = append(names, ch.Name())
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("channels = %v, want %v", names, tt.want)
			}
		})
	}
}

type recordingChannel struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func TestMonitor_CheckOnce(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	ok := &recordingChannel{}
	broken := &recordingChannel{err: errors.New("unreachable")}
	m := NewMonitor(rec, testThresholds, []Channel{broken, ok}, "api", time.Minute, discardLogger())
	m.now = func() time.Time { return fixedNow }

	// Activity before the first check is the baseline.
	rec.ObserveAPIRequest("GET /api/services", 500, time.Millisecond)
	if got := m.CheckOnce(context.Background()); len(got) != 0 {
		t.Fatalf("baseline check fired %+v", got)
	}

	for i := range 10 {
		status := 200
		if i < 3 {
			status = 503
		}
		rec.ObserveAPIRequest("GET /api/services", status, time.Millisecond)
	}
	got := m.CheckOnce(context.Background())
	if len(got) != 1 || got[0].Type != TypeHighErrorRate {
		t.Fatalf("alerts = %+v", got)
	}
	if got[0].Source != "api" || len(got[0].ID) != 26 {
		t.Errorf("alert = %+v", got[0])
	}
	if len(ok.alerts) != 1 || ok.alerts[0].ID != got[0].ID {
		t.Errorf("delivered = %+v; a failing channel must not block the others", ok.alerts)
	}

	if got := m.CheckOnce(context.Background()); len(got) != 0 {
		t.Errorf("quiet interval fired %+v", got)
	}
}

func TestMonitor_RunStopsOnShutdown(t *testing.T) {
	t.Parallel()

	m := NewMonitor(metrics.NewInMemory(), testThresholds, nil, "collector", time.Hour, discardLogger())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		ready := m.last != nil
		m.mu.Unlock()
		if ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
