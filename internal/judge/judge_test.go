package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	j, err := New(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, j)

	j, err = New(Config{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	gemini, ok := j.(*OpenAI)
	require.True(t, ok)
	require.Equal(t, "gemini-2.5-flash", gemini.cfg.Model)

	j, err = New(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &Anthropic{}, j)

	_, err = New(Config{Provider: "ollama", APIKey: "k"})
	require.Error(t, err)
}

type stubJudge struct {
	out string
	err error
}

func (s stubJudge) Complete(context.Context, Prompt) (string, error) {
	return s.out, s.err
}

func TestInstrumentedWrapsErrors(t *testing.T) {
	t.Parallel()

	inst := NewInstrumented(stubJudge{err: errors.New("quota")}, zap.NewNop())
	_, err := inst.Complete(context.Background(), Prompt{Purpose: PurposeEvaluate})
	require.EqualError(t, err, "judge evaluate: quota")

	inst = NewInstrumented(stubJudge{out: "true"}, nil)
	out, err := inst.Complete(context.Background(), Prompt{Purpose: PurposeEvaluate})
	require.NoError(t, err)
	require.Equal(t, "true", out)
}
