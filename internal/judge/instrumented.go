package judge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
)

// Instrumented records metrics and logs around another Judge.
type Instrumented struct {
	next   Judge
	logger *zap.Logger
}

// NewInstrumented wraps next.
func NewInstrumented(next Judge, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, logger: logger}
}

// Complete forwards the prompt and observes the call.
func (i *Instrumented) Complete(ctx context.Context, prompt Prompt) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveJudge(string(prompt.Purpose), "error", elapsed)
		i.logger.Warn("judge call failed",
			zap.String("purpose", string(prompt.Purpose)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", fmt.Errorf("judge %s: %w", prompt.Purpose, err)
	}
	metrics.ObserveJudge(string(prompt.Purpose), "ok", elapsed)
	i.logger.Debug("judge call completed",
		zap.String("purpose", string(prompt.Purpose)),
		zap.Duration("elapsed", elapsed),
		zap.Int("response_len", len(out)),
	)
	return out, nil
}
