// Command oficios drives the regulator document pipeline from the
// terminal: one-shot ingestion and extraction runs, the full batch
// pipeline, audit-trail reports, deadline arithmetic, runtime health
// probes and configuration validation.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

const version = "1.0.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "pipeline", "run":
		return runPipelineCmd(args[2:], stdout, stderr)
	case "ingest":
		return runIngestCmd(args[2:], stdout, stderr)
	case "extract":
		return runExtractCmd(args[2:], stdout, stderr)
	case "report":
		return runReportCmd(args[2:], stdout, stderr)
	case "sla":
		return runSLACmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "validate-config":
		return runValidateConfigCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "oficios %s (%s)\n", version, runtime.Version())
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "oficios %s\n", version)
	fmt.Fprintln(w, "Regulator document processing pipeline.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  oficios <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "PIPELINE")
	printCommand(w, "pipeline", "Run the full batch pipeline (--url | --profile)")
	printCommand(w, "ingest", "Download new documents only (--url | --profile)")
	printCommand(w, "extract", "Extract and classify one local document (--path)")

	printSection(w, "REPORTING")
	printCommand(w, "report", "Render an audit-trail report (--start, --end, --format)")
	printCommand(w, "sla", "Compute a response deadline (--intake, --window)")

	printSection(w, "OPERATIONS")
	printCommand(w, "health", "Probe runtime dependencies and report status")
	printCommand(w, "validate-config", "Validate a processing config document (--file)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-16s %s\n", name, desc)
}
