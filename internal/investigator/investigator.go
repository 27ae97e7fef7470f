// Package investigator hands uncertain match outcomes to an external
// reasoning model and validates what comes back. The adapter owns prompt
// construction, the per-case deadline, bounded retry and verdict hygiene;
// it never writes allocations, so a hallucinated verdict can at worst be
// discarded.
package investigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reconcilia-matching-engine/internal/domain/escalation"
)

// ContentGenerator produces one model response for one prompt. GeminiGenerator
// is the production implementation; tests substitute a canned one.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config bounds one investigation
type Config struct {
	Timeout     time.Duration // budget for the whole investigation, retries included
	MaxAttempts int           // model calls per investigation
	BackoffBase time.Duration // first retry delay, doubled per attempt
}

// Adapter runs investigations against a ContentGenerator
type Adapter struct {
	generator ContentGenerator
	cfg       Config
	logger    *slog.Logger
}

func NewAdapter(generator ContentGenerator, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{generator: generator, cfg: cfg, logger: logger}
}

// Investigate asks the model for a verdict on one queued case. Malformed
// responses are retried within the attempt budget; verdicts referencing ids
// outside the candidate set are discarded with ErrInvalidVerdictReference.
// Running out of time yields ErrEscalationTimeout so callers can fall closed.
func (a *Adapter) Investigate(ctx context.Context, req *escalation.InvestigationRequest) (*escalation.Verdict, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("building investigation prompt: %w", err)
	}

	started := time.Now()
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	logger := a.logger.With("decision_id", req.DecisionID.String())

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := a.waitBackoff(ctx, attempt); err != nil {
				return nil, escalation.ErrEscalationTimeout{Elapsed: time.Since(started)}
			}
		}

		raw, err := a.generator.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, escalation.ErrEscalationTimeout{Elapsed: time.Since(started)}
			}
			logger.Warn("Investigation model call failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		verdict, err := parseVerdict(raw)
		if err != nil {
			logger.Warn("Investigation response unusable", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		if err := validateReferences(verdict, req); err != nil {
			// A verdict pointing outside its candidate set is untrusted
			// output; it is dropped, never repaired
			logger.Error("Investigation verdict rejected", "attempt", attempt, "error", err)
			return nil, err
		}

		logger.Info("Investigation verdict accepted",
			"attempt", attempt,
			"status", verdict.Status,
			"confidence", verdict.Confidence,
			"matched_items", len(verdict.MatchedItemIDs),
		)
		return verdict, nil
	}

	if ctx.Err() != nil {
		return nil, escalation.ErrEscalationTimeout{Elapsed: time.Since(started)}
	}
	return nil, fmt.Errorf("investigation failed after %d attempts: %w", a.cfg.MaxAttempts, lastErr)
}

// waitBackoff sleeps for the exponential backoff delay of the given attempt,
// aborting early when the deadline hits
func (a *Adapter) waitBackoff(ctx context.Context, attempt int) error {
	if a.cfg.BackoffBase <= 0 {
		return ctx.Err()
	}
	delay := a.cfg.BackoffBase << (attempt - 2)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseVerdict decodes the model output into a verdict, tolerating the code
// fences and stray prose models produce despite instructions
func parseVerdict(raw string) (*escalation.Verdict, error) {
	clean := cleanVerdictJSON(raw)
	if clean == "" {
		return nil, errors.New("response contains no JSON object")
	}

	var verdict escalation.Verdict
	if err := json.Unmarshal([]byte(clean), &verdict); err != nil {
		return nil, fmt.Errorf("unmarshaling verdict: %w", err)
	}
	if verdict.Status == "" {
		return nil, errors.New("verdict has no status")
	}
	if verdict.Confidence < 0 || verdict.Confidence > 100 {
		return nil, fmt.Errorf("verdict confidence %d outside [0, 100]", verdict.Confidence)
	}
	return &verdict, nil
}

// validateReferences checks every matched id against the candidate set the
// model was shown
func validateReferences(verdict *escalation.Verdict, req *escalation.InvestigationRequest) error {
	if len(verdict.MatchedItemIDs) == 0 {
		return nil
	}
	allowed := req.CandidateItemIDs()
	for _, id := range verdict.MatchedItemIDs {
		if _, ok := allowed[id]; !ok {
			return escalation.ErrInvalidVerdictReference{ID: id}
		}
	}
	return nil
}

// cleanVerdictJSON strips Markdown fences and keeps the first top-level JSON
// object when the model wraps its answer in prose
func cleanVerdictJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}
