// Command auditworker runs the audit pipeline's ingestion workers, HTTP
// health/metrics surface, and scheduled integrity/alert/retention sweeps.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/healthaudit/audit-pipeline/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars always take precedence)")
	flag.Parse()

	application := app.NewApplication()

	if err := application.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start application: %v\n", err)
		os.Exit(1)
	}

	application.WaitForShutdown()

	if err := application.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		os.Exit(1)
	}
}
