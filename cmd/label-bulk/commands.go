package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/label-bulk/internal/batch"
	"github.com/hochfrequenz/label-bulk/internal/config"
	"github.com/hochfrequenz/label-bulk/internal/coordinator"
	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/executor"
	"github.com/hochfrequenz/label-bulk/internal/jira"
	"github.com/hochfrequenz/label-bulk/internal/logging"
	"github.com/hochfrequenz/label-bulk/internal/notify"
	"github.com/hochfrequenz/label-bulk/internal/progress"
	"github.com/hochfrequenz/label-bulk/internal/report"
)

var (
	inputFile      string
	batchNames     string
	dryRun         bool
	force          bool
	skipValidation bool
	labelSpaces    string
	resumeFile     string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process batches from the input file",
		RunE:  runRun,
	}
	runCmd.Flags().StringVarP(&inputFile, "input", "i", "", "batch input file (default from config)")
	runCmd.Flags().StringVarP(&batchNames, "batch", "b", "", "comma-separated batch names to run")
	runCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "show what would change without calling the tracker's edit API")
	runCmd.Flags().BoolVarP(&force, "force", "f", false, "run DONE batches and ignore saved progress")
	runCmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "skip input validation")
	runCmd.Flags().StringVar(&labelSpaces, "label-spaces", "", "labels with spaces: reject, strip, underscore or skip")
	runCmd.Flags().StringVar(&resumeFile, "resume-file", "", "resume a single batch from this progress file")
	rootCmd.AddCommand(runCmd)

	// validate command
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the input file and print the normalized batches",
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "batch input file (default from config)")
	validateCmd.Flags().StringVar(&labelSpaces, "label-spaces", "", "labels with spaces: reject, strip, underscore or skip")
	rootCmd.AddCommand(validateCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show batch status and saved progress",
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVarP(&inputFile, "input", "i", "", "batch input file (default from config)")
	rootCmd.AddCommand(statusCmd)

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "label-bulk", version)
		},
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	if inputFile != "" {
		cfg.Paths.InputFile = inputFile
	}
	return cfg, nil
}

// loadBatches reads the input file and, unless skipped, validates it with
// the configured space policy
func loadBatches(cfg *config.Config, validate bool) (*batch.File, error) {
	file, err := batch.Load(cfg.Paths.InputFile)
	if err != nil {
		return nil, fmt.Errorf("loading batches: %w", err)
	}
	if !validate {
		return file, nil
	}

	policyName := cfg.Validation.LabelSpaces
	if labelSpaces != "" {
		policyName = labelSpaces
	}
	policy, err := batch.ParseSpacePolicy(policyName)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(policy); err != nil {
		return nil, fmt.Errorf("invalid input file %s:\n%w", file.Path, err)
	}
	return file, nil
}

// openProgress returns the configured backend and a close func
func openProgress(cfg *config.Config) (progress.Backend, func() error, error) {
	switch cfg.Progress.Backend {
	case config.BackendSQLite:
		backend, err := progress.NewSQLiteBackend(cfg.Progress.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening progress database: %w", err)
		}
		return backend, backend.Close, nil
	default:
		backend, err := progress.NewFileBackend(cfg.Paths.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() error { return nil }, nil
	}
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		LogDir: cfg.Paths.LogDir,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if resumeFile != "" && cfg.Progress.Backend != config.BackendFile {
		return fmt.Errorf("--resume-file needs the %q progress backend", config.BackendFile)
	}

	file, err := loadBatches(cfg, !skipValidation)
	if err != nil {
		return err
	}
	for _, b := range file.Batches {
		if err := b.Validate(); err != nil {
			logger.Warn("batch will fail validation", "batch", b.Name, "error", err)
		}
	}

	client, err := jira.NewClient(jira.Config{
		BaseURL:            cfg.Tracker.BaseURL,
		Email:              cfg.Tracker.Email,
		APIToken:           cfg.Tracker.APIToken,
		BearerToken:        cfg.Tracker.BearerToken,
		APIVersion:         cfg.Tracker.APIVersion,
		PageSize:           cfg.Tracker.PageSize,
		Timeout:            cfg.Tracker.Timeout.Duration,
		InsecureSkipVerify: !cfg.Tracker.VerifyTLS,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	if !cfg.Tracker.VerifyTLS {
		logger.Warn("TLS certificate verification is disabled")
	}

	backend, closeBackend, err := openProgress(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	tracker := progress.NewTracker(backend,
		progress.WithLogger(logger),
		progress.WithRetryDelay(cfg.Progress.RetryDelay.Duration),
	)
	exec := executor.New(client, tracker, executor.Config{
		MinDelay:      cfg.Limits.MinDelay.Duration,
		MaxAttempts:   cfg.Limits.MaxAttempts,
		BackoffBase:   cfg.Limits.BackoffBase.Duration,
		BackoffMax:    cfg.Limits.BackoffMax.Duration,
		MaxRetryAfter: cfg.Limits.MaxRetryAfter.Duration,
		Concurrency:   cfg.Limits.Concurrency,
		CheckEditable: cfg.Tracker.CheckEditability,
	}, executor.WithLogger(logger))

	writer, err := report.NewWriter(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	coord := coordinator.New(coordinator.Deps{
		Runner:   exec,
		Progress: tracker,
		Status:   file,
		Reporter: writer,
		Notifier: buildNotifier(cfg),
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := coord.Run(ctx, file.Batches, coordinator.Options{
		DryRun:     dryRun,
		Force:      force,
		Selection:  coordinator.ParseSelection(batchNames),
		ResumeFile: resumeFile,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), report.Render(summary))
	logSummary(ctx, logger, summary)
	if summary.HasFailures() {
		return errFailures
	}
	return nil
}

func logSummary(ctx context.Context, logger *slog.Logger, s *domain.RunSummary) {
	level := slog.LevelInfo
	if s.HasFailures() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "summary",
		"batches", s.Totals.Batches,
		"issues", s.Totals.Issues,
		"updated", s.Totals.Updated,
		"skipped", s.Totals.Skipped,
		"failed", s.Totals.Failed,
		"warnings", len(s.Warnings),
	)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file, err := loadBatches(cfg, true)
	if err != nil {
		return err
	}

	var invalid []error
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tSTATUS\tADD\tREMOVE\tQUERY")
	for _, b := range file.Batches {
		status := string(b.Status)
		if err := b.Validate(); err != nil {
			invalid = append(invalid, err)
			status = "INVALID"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			b.Name, status, joinOrDash(b.Add), joinOrDash(b.Remove), b.Query)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(invalid) > 0 {
		fmt.Fprintf(out, "\n%s: %d of %d batches invalid\n", file.Path, len(invalid), len(file.Batches))
		return fmt.Errorf("invalid input file %s:\n%w", file.Path, errors.Join(invalid...))
	}
	fmt.Fprintf(out, "\n%s: %d batches OK\n", file.Path, len(file.Batches))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file, err := loadBatches(cfg, false)
	if err != nil {
		return err
	}
	backend, closeBackend, err := openProgress(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	return writeStatus(cmd.Context(), cmd.OutOrStdout(), file.Batches, backend)
}

// writeStatus prints the latest progress of every input batch, followed by
// batches the backend still holds progress for but the input no longer names
func writeStatus(ctx context.Context, out io.Writer, batches []domain.BatchSpec, backend progress.Backend) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tSTATUS\tPROGRESS\tRESOLVED\tFAILED\tUPDATED")

	known := make(map[string]bool, len(batches))
	for _, b := range batches {
		known[b.Name] = true
		record, err := backend.Latest(ctx, b.Name)
		if err != nil {
			return err
		}
		writeStatusRow(w, b.Name, string(b.Status), record)
	}

	if lister, ok := backend.(progress.Lister); ok {
		records, err := lister.List(ctx)
		if err != nil {
			return err
		}
		for _, record := range records {
			if !known[record.BatchName] {
				writeStatusRow(w, record.BatchName, "(not in input)", record)
			}
		}
	}
	return w.Flush()
}

func writeStatusRow(w io.Writer, name, status string, record *domain.ProgressRecord) {
	if record == nil {
		fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", name, status)
		return
	}
	resolved, failed := record.Counts()
	state := "in progress"
	if record.Completed {
		state = "complete"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
		name, status, state, resolved, failed, humanize.Time(record.UpdatedAt))
}

func joinOrDash(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return strings.Join(labels, ",")
}
