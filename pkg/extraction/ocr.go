package extraction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-compliance/oficios/pkg/config"
)

// Text is recognized document text with the engine's mean confidence.
type Text struct {
	Content        string
	MeanConfidence float64 // 0..1
}

// Recognizer turns scanned-document bytes into text. Implementations own
// rasterization and image preprocessing; the processing config carries the
// knobs.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte) (Text, error)
}

// Engines in plain-text mode report no word confidences; a mid-band default
// keeps downstream review gating meaningful.
const execRecognizerConfidence = 0.7

// ExecRecognizer shells out to an external OCR engine. The document is
// written to a temp file removed on every exit path; "{input}" in the
// argument template is replaced with its path per call. Language, OEM and
// PSM flags derive from the processing config, Tesseract CLI convention.
type ExecRecognizer struct {
	Command string
	Args    []string
	cfg     config.ProcessingConfig
	log     *slog.Logger
}

// NewExecRecognizer builds a recognizer for command with the standard
// argument template "{input} stdout".
func NewExecRecognizer(command string, cfg config.ProcessingConfig, log *slog.Logger) *ExecRecognizer {
	if log == nil {
		log = slog.Default()
	}
	return &ExecRecognizer{
		Command: command,
		Args:    []string{"{input}", "stdout"},
		cfg:     cfg,
		log:     log.With("component", "ocr"),
	}
}

// Recognize runs the engine, retrying per the processing config. Caller
// cancellation wins over retries.
func (r *ExecRecognizer) Recognize(ctx context.Context, data []byte) (Text, error) {
	tmp, err := os.CreateTemp("", "oficio-ocr-*.bin")
	if err != nil {
		return Text{}, fmt.Errorf("create ocr temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Text{}, fmt.Errorf("write ocr temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Text{}, fmt.Errorf("close ocr temp file: %w", err)
	}

	for attempt := 0; ; attempt++ {
		text, err := r.runOnce(ctx, tmp.Name())
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return Text{}, ctx.Err()
		}
		if attempt >= r.cfg.MaxRetries {
			return Text{}, err
		}
		r.log.Warn("ocr attempt failed", "attempt", attempt+1, "error", err)
		select {
		case <-time.After(time.Duration(r.cfg.RetryDelaySeconds) * time.Second):
		case <-ctx.Done():
			return Text{}, ctx.Err()
		}
	}
}

func (r *ExecRecognizer) runOnce(ctx context.Context, inputPath string) (Text, error) {
	if r.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := make([]string, 0, len(r.Args)+6)
	for _, a := range r.Args {
		args = append(args, strings.ReplaceAll(a, "{input}", inputPath))
	}
	if langs := r.languages(); langs != "" {
		args = append(args, "-l", langs)
	}
	args = append(args,
		"--oem", strconv.Itoa(r.cfg.OEM),
		"--psm", strconv.Itoa(r.cfg.PSM))

	//nolint:gosec // G204: command and args are operator configuration
	cmd := exec.CommandContext(ctx, r.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Text{}, ctx.Err()
		}
		return Text{}, fmt.Errorf("ocr engine: %w (%s)", err, firstLine(stderr.String()))
	}
	return Text{Content: stdout.String(), MeanConfidence: execRecognizerConfidence}, nil
}

func (r *ExecRecognizer) languages() string {
	langs := make([]string, 0, 2)
	if r.cfg.DefaultLanguage != "" {
		langs = append(langs, r.cfg.DefaultLanguage)
	}
	if r.cfg.FallbackLanguage != "" && r.cfg.FallbackLanguage != r.cfg.DefaultLanguage {
		langs = append(langs, r.cfg.FallbackLanguage)
	}
	return strings.Join(langs, "+")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
