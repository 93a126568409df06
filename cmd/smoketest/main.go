package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shc-library/kiosk-agent/config"
	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/internal/services"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// smoketest checks a kiosk's library API configuration from the command line.
// By default it only calls the health endpoint; --toggle also flips the
// diagnostics student and reads their status back.
func main() {
	toggle := pflag.Bool("toggle", false, "also run a toggle and status lookup for the diagnostics student")
	asJSON := pflag.Bool("json", false, "print the report as JSON")
	studentID := pflag.String("student-id", "", "override DIAGNOSTICS_STUDENT_ID")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		Environment: "development",
		ServiceName: "kiosk-smoketest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := libraryapi.NewClient(cfg.LibraryAPI.BaseURL, nil, cfg.LibraryAPITimeout())
	if err != nil {
		logger.Fatal("Failed to create library API client", zap.Error(err))
	}

	if *studentID == "" {
		*studentID = cfg.Kiosk.DiagnosticsStudentID
	}
	diagnostics := services.NewDiagnosticsService(client, cfg.LibraryAPI.BaseURL, *studentID)

	var report models.DiagnosticReport
	if *toggle {
		report = diagnostics.RunIntegration(context.Background())
	} else {
		report = diagnostics.RunHealthCheck(context.Background())
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report) //nolint:errcheck
	} else {
		printReport(report)
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func printReport(report models.DiagnosticReport) {
	fmt.Printf("Library API: %s\n", report.BaseURL)
	for i, step := range report.Steps {
		mark := "FAIL"
		if step.Passed {
			mark = "ok"
		}
		fmt.Printf("%d. %-14s %-4s %s (%s)\n", i+1, step.Name, mark, step.Detail, step.Elapsed)
	}
	if report.Passed {
		fmt.Println("All checks passed")
	} else {
		fmt.Println("Some checks failed")
	}
}
