package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meridian-compliance/oficios/pkg/config"
)

func TestExecRecognizerArgumentPlumbing(t *testing.T) {
	cfg := config.DefaultProcessingConfig()
	r := NewExecRecognizer("echo", cfg, nil)

	text, err := r.Recognize(context.Background(), []byte("scanned"))
	if err != nil {
		t.Fatalf("Recognize() error: %v", err)
	}
	out := text.Content
	for _, want := range []string{"stdout", "-l spa+eng", "--oem 3", "--psm 3", "oficio-ocr-"} {
		if !strings.Contains(out, want) {
			t.Errorf("engine args missing %q in %q", want, out)
		}
	}
	if text.MeanConfidence <= 0 || text.MeanConfidence > 1 {
		t.Fatalf("MeanConfidence = %v, want a (0,1] default", text.MeanConfidence)
	}
}

func TestExecRecognizerRetriesThenFails(t *testing.T) {
	cfg := config.DefaultProcessingConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelaySeconds = 0
	r := NewExecRecognizer("false", cfg, nil)

	if _, err := r.Recognize(context.Background(), []byte("scanned")); err == nil {
		t.Fatal("Recognize() with a failing engine should error after retries")
	}
}

func TestExecRecognizerHonorsCancellation(t *testing.T) {
	cfg := config.DefaultProcessingConfig()
	cfg.MaxRetries = 10
	cfg.RetryDelaySeconds = 1
	r := NewExecRecognizer("false", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Recognize(ctx, []byte("scanned"))
	if err == nil {
		t.Fatal("Recognize() with a cancelled context should error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
