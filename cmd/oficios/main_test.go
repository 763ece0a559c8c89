package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"oficios"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_NoArgsShowsUsage(t *testing.T) {
	code, _, stderr := runCLI()
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "USAGE") {
		t.Errorf("usage not shown:\n%s", stderr)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, stderr := runCLI("frobnicate")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI("version")
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(stdout, "oficios "+version) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := runCLI("help")
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, cmd := range []string{"pipeline", "ingest", "extract", "report", "sla", "health", "validate-config"} {
		if !strings.Contains(stdout, cmd) {
			t.Errorf("help does not mention %s", cmd)
		}
	}
}

func TestPipeline_RequiresSource(t *testing.T) {
	code, _, stderr := runCLI("pipeline")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--url or --profile") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestIngest_RejectsUnknownPreset(t *testing.T) {
	code, _, stderr := runCLI("ingest", "--url", "https://portal.example", "--preset", "bogus")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if stderr == "" {
		t.Error("expected an error message")
	}
}

func TestExtract_RequiresPath(t *testing.T) {
	code, _, stderr := runCLI("extract")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--path is required") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestValidateConfig_ValidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.yaml")
	if err := os.WriteFile(path, []byte("max_concurrency: 4\ntimeout_seconds: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCLI("validate-config", "--file", path)
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "valid") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestValidateConfig_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.yaml")
	if err := os.WriteFile(path, []byte("max_concurrency: 4\nbogus_key: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI("validate-config", "--file", path)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Invalid") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestValidateConfig_WarnsOnLowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.yaml")
	if err := os.WriteFile(path, []byte("confidence_threshold: 0.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI("validate-config", "--file", path)
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "low-quality") {
		t.Errorf("expected a threshold warning, got %q", stderr)
	}
}

func TestValidateConfig_RequiresFile(t *testing.T) {
	code, _, _ := runCLI("validate-config")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestSLA_ComputesDeadline(t *testing.T) {
	t.Setenv("HOLIDAY_CALENDAR", "")

	code, stdout, stderr := runCLI("sla", "--intake", "2025-01-06", "--window", "10", "--as-of", "2025-01-08")
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Deadline:  2025-01-20") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "Remaining: 8 business days") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestSLA_JSONOutput(t *testing.T) {
	t.Setenv("HOLIDAY_CALENDAR", "")

	code, stdout, stderr := runCLI("sla", "--intake", "2025-01-06", "--window", "10", "--as-of", "2025-01-08", "--json")
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}

	var status struct {
		Deadline      time.Time `json:"deadline"`
		RemainingDays int       `json:"remaining_days"`
	}
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("bad JSON: %v\n%s", err, stdout)
	}
	if got := status.Deadline.Format("2006-01-02"); got != "2025-01-20" {
		t.Errorf("deadline = %s, want 2025-01-20", got)
	}
	if status.RemainingDays != 8 {
		t.Errorf("remaining = %d, want 8", status.RemainingDays)
	}
}

func TestSLA_RejectsBadIntake(t *testing.T) {
	code, _, stderr := runCLI("sla", "--intake", "06/01/2025")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "YYYY-MM-DD") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestReport_RequiresStart(t *testing.T) {
	code, _, stderr := runCLI("report")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--start is required") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestReport_RejectsUnknownFormat(t *testing.T) {
	code, _, stderr := runCLI("report", "--start", "2025-01-01", "--format", "xml")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "unknown format") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestReport_EmptyTrailStillWritesHeader(t *testing.T) {
	dir := t.TempDir()
	setCleanEnv(t, dir)

	code, stdout, stderr := runCLI("report", "--start", "2025-01-01", "--end", "2025-01-31")
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "AuditId,Timestamp,CorrelationId") {
		t.Errorf("missing CSV header:\n%s", stdout)
	}
	if !strings.Contains(stderr, "0 records") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestHealth_Reports(t *testing.T) {
	dir := t.TempDir()
	setCleanEnv(t, dir)

	code, stdout, _ := runCLI("health")
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(stdout, "Status:") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "temp_filesystem") {
		t.Errorf("stdout = %q", stdout)
	}
}

// setCleanEnv pins every environment knob the service wiring reads, so
// tests cannot pick up a developer's local configuration.
func setCleanEnv(t *testing.T, dir string) {
	t.Helper()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "oficios.db"))
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUDIT_LOG_PATH", "")
	t.Setenv("HOLIDAY_CALENDAR", "")
	t.Setenv("EXPORT_SIGNING_KEY", "")
	t.Setenv("EXPORT_TOKEN_SECRET", "")
	t.Setenv("DOWNLOAD_STORAGE_TYPE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}
