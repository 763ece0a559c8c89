package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/browser"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/crypto"
	"github.com/meridian-compliance/oficios/pkg/decision"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/export"
	"github.com/meridian-compliance/oficios/pkg/extraction"
	"github.com/meridian-compliance/oficios/pkg/health"
	"github.com/meridian-compliance/oficios/pkg/ingestion"
	"github.com/meridian-compliance/oficios/pkg/observability"
	"github.com/meridian-compliance/oficios/pkg/pipeline"
	"github.com/meridian-compliance/oficios/pkg/sla"
	"github.com/meridian-compliance/oficios/pkg/storage"
	"github.com/meridian-compliance/oficios/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // embedded SQLite driver
)

// downloadTokenTTL bounds export download token lifetime.
const downloadTokenTTL = 15 * time.Minute

// services is the wired processing stack for one CLI invocation.
type services struct {
	cfg        *config.Config
	processing config.ProcessingConfig
	log        *slog.Logger

	auditLog audit.Logger
	recorder *audit.Recorder
	bus      *events.Bus
	blobs    storage.Store
	files    store.FileMetadataStore
	reviews  store.ReviewStore

	ingest  *ingestion.Stage
	extract *extraction.Stage
	decide  *decision.Stage
	export  *export.Stage

	calendar  *sla.Calendar
	deadlines *sla.Tracker
	perf      *health.Tracker
	obs       *observability.Provider

	signedPDF bool

	closers []func() error
}

// Close releases resources in reverse wiring order.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServices wires the full stack from the ambient environment and the
// resolved processing config. Every subcommand that touches documents or
// the audit trail goes through here, so a misconfigured store fails fast
// instead of midway into a batch.
func buildServices(ctx context.Context, stderr io.Writer, processing config.ProcessingConfig) (*services, error) {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel, stderr)

	s := &services{
		cfg:        cfg,
		processing: processing,
		log:        log,
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	if err := s.wireStores(ctx, cfg, db); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.wireStages(ctx, cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// openDatabase opens the operational SQLite database, creating its parent
// directory on first run.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", cfg.SQLitePath, err)
	}
	return db, nil
}

func (s *services) wireStores(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	files, err := store.NewSQLiteFileMetadataStore(db)
	if err != nil {
		return fmt.Errorf("file metadata store: %w", err)
	}
	s.files = files

	reviews, err := store.NewSQLiteReviewStore(db)
	if err != nil {
		return fmt.Errorf("review store: %w", err)
	}
	s.reviews = reviews

	// The audit trail can live in Postgres for shared deployments; the
	// operational state above stays in the local SQLite file either way.
	if cfg.DatabaseURL != "" {
		pg, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres audit store: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		s.auditLog = store.NewPostgresAuditStore(pg)
	} else {
		auditStore, err := store.NewSQLiteAuditStore(db)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		s.auditLog = auditStore
	}

	sink := audit.Sink(s.auditLog)
	if cfg.AuditLogPath != "" {
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open audit log %s: %w", cfg.AuditLogPath, err)
		}
		s.closers = append(s.closers, f.Close)
		sink = teeSink{s.auditLog, audit.NewFileSink(f)}
	}
	s.recorder = audit.NewRecorder(sink, s.log)

	blobs, err := storage.NewStoreFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	s.blobs = blobs
	return nil
}

func (s *services) wireStages(ctx context.Context, cfg *config.Config) error {
	s.bus = events.NewBus(s.log)

	newBrowser := func() browser.Automation {
		return browser.NewRod(browser.DefaultConfig(), s.log)
	}
	s.ingest = ingestion.NewStage(newBrowser, s.blobs, s.files, s.recorder, s.processing, s.log).
		WithTracker(s.downloadTracker(cfg)).
		WithPublisher(s.bus)

	recognizer := extraction.NewExecRecognizer("tesseract", s.processing, s.log)
	s.extract = extraction.NewStage(s.blobs, s.recorder, s.processing, recognizer, s.log)

	s.decide = decision.NewStage(s.reviews, s.recorder, s.processing, s.log).
		WithPublisher(s.bus)

	signer, signed, err := exportSigner(cfg)
	if err != nil {
		return err
	}
	s.signedPDF = signed
	s.export = export.NewStage(signer, s.recorder, s.log)
	if cfg.ExportTokenSecret != "" {
		tokens, err := export.NewTokenIssuer([]byte(cfg.ExportTokenSecret), downloadTokenTTL)
		if err != nil {
			return fmt.Errorf("export token issuer: %w", err)
		}
		s.export = s.export.WithTokens(tokens)
	}

	cal, err := loadCalendar(cfg)
	if err != nil {
		return err
	}
	s.calendar = cal
	s.deadlines = sla.NewTracker(cal, sla.Config{
		DefaultWindowDays:    cfg.SLADefaultWindowDays,
		EarlyWarningFraction: cfg.SLAEarlyWarningFraction,
		CriticalFraction:     cfg.SLACriticalFraction,
	}, s.recorder, s.bus)

	s.perf = health.NewTracker(15 * time.Minute)

	obs, err := observability.New(ctx, telemetryConfig())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	s.obs = obs
	s.closers = append(s.closers, func() error {
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return obs.Shutdown(shctx)
	})
	return nil
}

// runner assembles the batch pipeline over the wired stages.
func (s *services) runner() *pipeline.Runner {
	return pipeline.NewRunner(s.ingest, s.extract, s.decide, s.export, s.blobs, s.processing, s.log).
		WithCalendar(s.calendar).
		WithDeadlines(s.deadlines).
		WithPerformance(s.perf).
		WithObservability(s.obs).
		WithSignedPDF(s.signedPDF)
}

func (s *services) downloadTracker(cfg *config.Config) ingestion.DownloadTracker {
	if cfg.RedisAddr == "" {
		return ingestion.NewMemoryTracker(0)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	s.closers = append(s.closers, client.Close)
	return ingestion.NewRedisTracker(client, 0)
}

// exportSigner builds the PDF sealing key from EXPORT_SIGNING_KEY, a
// hex-encoded 32-byte Ed25519 seed. Without a key PDFs are skipped and
// only the XML and Excel artifacts are produced.
func exportSigner(cfg *config.Config) (crypto.Signer, bool, error) {
	if cfg.ExportSigningKey == "" {
		return nil, false, nil
	}
	seed, err := hex.DecodeString(strings.TrimSpace(cfg.ExportSigningKey))
	if err != nil {
		return nil, false, fmt.Errorf("EXPORT_SIGNING_KEY is not hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, false, fmt.Errorf("EXPORT_SIGNING_KEY must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	keyID := fmt.Sprintf("export-%x", priv.Public().(ed25519.PublicKey)[:4])
	return crypto.NewEd25519SignerFromKey(priv, keyID), true, nil
}

func loadCalendar(cfg *config.Config) (*sla.Calendar, error) {
	if cfg.HolidayCalendar != "" {
		cal, err := sla.LoadCalendar(cfg.HolidayCalendar)
		if err != nil {
			return nil, fmt.Errorf("holiday calendar: %w", err)
		}
		return cal, nil
	}
	year := time.Now().Year()
	return sla.StatutoryCalendar(year-1, year+5), nil
}

// telemetryConfig reads the standard OTLP environment variables. Telemetry
// stays off unless an endpoint is set.
func telemetryConfig() *observability.Config {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = version
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		oc.Enabled = true
		oc.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(ep, "https://"), "http://")
		oc.Insecure = strings.HasPrefix(ep, "http://") || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}
	if env := os.Getenv("OTEL_ENVIRONMENT"); env != "" {
		oc.Environment = env
	}
	return oc
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// teeSink copies every audit record to all member sinks. The database
// remains authoritative; a file tee failing does not lose the record.
type teeSink []audit.Sink

func (t teeSink) LogAudit(ctx context.Context, rec audit.Record) error {
	var errs []error
	for _, sink := range t {
		if err := sink.LogAudit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
