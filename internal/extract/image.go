package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/judge"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// FromImage asks the judge to read description off a PNG screenshot. The
// result carries zero confidence; callers decide how much to trust it.
func (e *Extractor) FromImage(ctx context.Context, png []byte, description string) (result watch.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("image extraction panicked", zap.Any("panic", r))
			result = watch.EmptyResult()
		}
	}()

	if len(png) == 0 {
		return watch.EmptyResult()
	}
	raw, err := e.judge.Complete(ctx, judge.Prompt{
		Purpose:   judge.PurposeExtractImage,
		Text:      fmt.Sprintf("Extract the following: %s. Return value and nothing else.", description),
		Image:     png,
		ImageMIME: "image/png",
	})
	if err != nil {
		e.logger.Warn("image extraction judge failed", zap.Error(err))
		return watch.EmptyResult()
	}
	value := judge.Text(raw)
	if value == "" {
		return watch.EmptyResult()
	}
	return watch.ExtractionResult{
		Value:      &value,
		Normalized: NormalizeNumber(value),
		Tier:       watch.TierVision,
	}
}
