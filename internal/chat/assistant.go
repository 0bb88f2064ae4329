package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pantrynav/pantrynav/internal/i18n"
)

// ErrRateLimited is reported when the per-process limiter refuses a request.
var ErrRateLimited = errors.New("Rate limit exceeded. Please try again in a moment.")

// ErrEmptyMessage is reported when there is nothing to ask.
var ErrEmptyMessage = errors.New("No message provided")

const systemPromptID = "chat.system_prompt"

// Generator produces a completion. *OllamaClient satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reply is the JSON line printed by cmd/chat. Response is "" when Error is
// set.
type Reply struct {
	Response string  `json:"response"`
	Error    *string `json:"error"`
}

// Failed reports whether the reply carries an error.
func (r Reply) Failed() bool { return r.Error != nil }

// Assistant builds the localized prompt and calls the model.
type Assistant struct {
	gen     Generator
	catalog *i18n.Catalog
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAssistant creates an assistant allowing rps requests per second.
// rps <= 0 disables limiting.
func NewAssistant(gen Generator, catalog *i18n.Catalog, rps float64, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Assistant{
		gen:     gen,
		catalog: catalog,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "chat.assistant"),
	}
}

// Prompt returns the full prompt for message in lang.
func (a *Assistant) Prompt(message, lang string) string {
	system := a.catalog.Localizer(lang).T(systemPromptID)
	return system + "\n\nUser: " + message + "\nAssistant:"
}

// Ask answers message in lang. Failures are reported in the reply, never
// returned, so the caller always has one JSON line to print.
func (a *Assistant) Ask(ctx context.Context, message, lang string) Reply {
	message = strings.TrimSpace(message)
	if message == "" {
		return failure(ErrEmptyMessage)
	}
	if !a.limiter.Allow() {
		a.logger.Warn("chat request rate limited")
		return failure(ErrRateLimited)
	}

	text, err := a.gen.Generate(ctx, a.Prompt(message, lang))
	if err != nil {
		a.logger.Error("chat generation failed", "language", lang, "error", err)
		return failure(asReported(err))
	}
	return Reply{Response: text}
}

// asReported keeps the model server's own failures and reports anything else
// as a connection failure.
func asReported(err error) error {
	var (
		se *StatusError
		ce *ConnectError
	)
	if errors.As(err, &se) || errors.As(err, &ce) || errors.Is(err, ErrEmptyResponse) {
		return err
	}
	return &ConnectError{Err: err}
}

func failure(err error) Reply {
	msg := err.Error()
	return Reply{Error: &msg}
}
