// Package evaluate decides whether an extracted value satisfies a monitor's
// natural-language condition. It fails closed: any judge failure is "false".
package evaluate

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/judge"
)

const promptTemplate = "Evaluate the following statement and return ONLY 'true' or 'false': " +
	"Does the numerical value **%s** satisfy the condition **%s**?"

// Evaluator asks the judge for verdicts and memoizes successful answers.
type Evaluator struct {
	judge  judge.Judge
	cache  *gocache.Cache
	logger *zap.Logger
}

// New builds an Evaluator. A non-positive ttl disables the verdict cache.
func New(j judge.Judge, ttl time.Duration, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{judge: j, logger: logger}
	if ttl > 0 {
		e.cache = gocache.New(ttl, 2*ttl)
	}
	return e
}

// Evaluate reports whether value satisfies condition.
func (e *Evaluator) Evaluate(ctx context.Context, value, condition string) (met bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("condition evaluation panicked", zap.Any("panic", r))
			met = false
		}
	}()

	key := value + "\x00" + condition
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if verdict, ok := v.(bool); ok {
				return verdict
			}
		}
	}

	raw, err := e.judge.Complete(ctx, judge.Prompt{
		Purpose: judge.PurposeEvaluate,
		Text:    fmt.Sprintf(promptTemplate, value, condition),
	})
	if err != nil {
		e.logger.Warn("condition evaluation failed, treating as unmet",
			zap.String("condition", condition),
			zap.Error(err),
		)
		return false
	}
	verdict := judge.DecodeVerdict(raw)
	if e.cache != nil {
		e.cache.SetDefault(key, verdict)
	}
	return verdict
}
