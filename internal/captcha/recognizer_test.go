// internal/captcha/recognizer_test.go
package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// fakeVision scripts per-model answers.
type fakeVision struct {
	answers map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeVision) Transcribe(_ context.Context, model, _ string, _ []byte) (string, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errs[model]; ok {
		return "", err
	}
	return f.answers[model], nil
}

func newTestRecognizer(t *testing.T, vision Vision, prompt PromptFunc) *Recognizer {
	t.Helper()
	cfg := config.RecognizerConfig{
		Models:         []string{"flash", "pro"},
		Instruction:    "read the code",
		APITimeout:     5 * time.Second,
		ManualFallback: prompt != nil,
	}
	return New(vision, cfg, t.TempDir(), prompt, zap.NewNop())
}

func TestSanitize(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
	}{
		{"aB3k9", "aB3k9"},
		{" aB3k9.\n", "aB3k9"},
		{"The code is: 7Xp2", "Thecodeis7Xp2"},
		{`"K9mQ"`, "K9mQ"},
		{"驗證碼 4f8a", "4f8a"},
		{"", ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Sanitize(tc.raw))
	}
}

func TestResolveFirstModelWins(t *testing.T) {
	vision := &fakeVision{answers: map[string]string{"flash": " aB3k9 "}}
	r := newTestRecognizer(t, vision, nil)

	code, ok := r.Resolve(context.Background(), []byte("img"), 1)
	require.True(t, ok)
	assert.Equal(t, "aB3k9", code)
	assert.Equal(t, []string{"flash"}, vision.calls, "second model should not be consulted")
}

func TestResolveFallsBackToNextModel(t *testing.T) {
	vision := &fakeVision{
		errs:    map[string]error{"flash": errors.New("quota exceeded")},
		answers: map[string]string{"pro": "7Xp2"},
	}
	r := newTestRecognizer(t, vision, nil)

	code, ok := r.Resolve(context.Background(), []byte("img"), 2)
	require.True(t, ok)
	assert.Equal(t, "7Xp2", code)
	assert.Equal(t, []string{"flash", "pro"}, vision.calls)
}

func TestResolveRejectsImplausibleAnswers(t *testing.T) {
	// Too short after sanitizing, and too long.
	vision := &fakeVision{answers: map[string]string{
		"flash": "a1",
		"pro":   "thisanswerisfartoolongtobeacode",
	}}
	r := newTestRecognizer(t, vision, nil)

	_, ok := r.Resolve(context.Background(), []byte("img"), 1)
	assert.False(t, ok)
	assert.Len(t, vision.calls, 2)
}

func TestResolveManualFallback(t *testing.T) {
	vision := &fakeVision{errs: map[string]error{
		"flash": errors.New("down"),
		"pro":   errors.New("down"),
	}}
	var promptedPath string
	prompt := func(_ context.Context, imagePath string) (string, error) {
		promptedPath = imagePath
		return " K9mQ\n", nil
	}
	r := newTestRecognizer(t, vision, prompt)

	code, ok := r.Resolve(context.Background(), []byte("img"), 1)
	require.True(t, ok)
	assert.Equal(t, "K9mQ", code)
	assert.NotEmpty(t, promptedPath, "prompt should receive the saved image path")
}

func TestResolveNoManualPromptAfterFirstAttempt(t *testing.T) {
	vision := &fakeVision{errs: map[string]error{
		"flash": errors.New("down"),
		"pro":   errors.New("down"),
	}}
	prompted := false
	prompt := func(_ context.Context, _ string) (string, error) {
		prompted = true
		return "aB3k9", nil
	}
	r := newTestRecognizer(t, vision, prompt)

	_, ok := r.Resolve(context.Background(), []byte("img"), 2)
	assert.False(t, ok)
	assert.False(t, prompted, "the blocking prompt must only fire on the first attempt")
}

func TestResolveNoFallbackWithoutPrompt(t *testing.T) {
	vision := &fakeVision{errs: map[string]error{
		"flash": errors.New("down"),
		"pro":   errors.New("down"),
	}}
	r := newTestRecognizer(t, vision, nil)

	_, ok := r.Resolve(context.Background(), []byte("img"), 1)
	assert.False(t, ok)
}

func TestResolveStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	vision := &fakeVision{errs: map[string]error{"flash": context.Canceled}}
	r := newTestRecognizer(t, vision, nil)

	cancel()
	_, ok := r.Resolve(ctx, []byte("img"), 1)
	assert.False(t, ok)
	assert.Equal(t, []string{"flash"}, vision.calls, "remaining models skipped after cancellation")
}
