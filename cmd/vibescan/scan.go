package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ejagojo/VibeScan/internal/alert"
	"github.com/ejagojo/VibeScan/internal/baseline"
	"github.com/ejagojo/VibeScan/internal/history"
	"github.com/ejagojo/VibeScan/internal/output"
	"github.com/ejagojo/VibeScan/internal/scanner"
	"github.com/ejagojo/VibeScan/internal/source"
	"github.com/ejagojo/VibeScan/pkg/rules"
)

type scanFlags struct {
	outputType  string
	outputFile  string
	jsonFile    string
	mdFile      string
	noFail      bool
	severity    string
	since       string
	commitRange string
}

func newScanCmd() *cobra.Command {
	var sf scanFlags

	cmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Scan Python files or directories",
		Long: `Scan one or more files or directories (default ".") and report findings
with a security score and a style score. Several targets are scored
independently and then merged.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := output.ParseOutputType(sf.outputType); err != nil {
				return err
			}
			if !rules.ParseSeverity(sf.severity).Known() {
				return fmt.Errorf("invalid --severity %q, want LOW, MEDIUM or HIGH", sf.severity)
			}
			if sf.since != "" && sf.commitRange != "" {
				return fmt.Errorf("--since and --commit-range are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(config)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if len(args) == 0 {
				args = []string{"."}
			}
			return runScan(cmd.Context(), cmd.OutOrStdout(), config, sf, args, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&sf.outputType, "type", "t", "console", "output type (console, json, sarif, markdown)")
	f.StringVarP(&sf.outputFile, "out", "o", "", "output file (default: stdout)")
	f.StringVar(&sf.jsonFile, "json", "", "also write a JSON report to this path")
	f.StringVar(&sf.mdFile, "md", "", "also write a Markdown report to this path")
	f.BoolVar(&sf.noFail, "no-fail", false, "always exit 0 when the scan completes")
	f.StringVar(&sf.severity, "severity", "high", "fail on findings at or above this severity")
	f.StringVar(&sf.since, "since", "", "only scan files changed since this git revision")
	f.StringVar(&sf.commitRange, "commit-range", "", "only scan files changed in a git range (from..to)")
	f.String("rules-sec", "", "security rules file (default: built-in)")
	f.String("rules-style", "", "style rules file (default: built-in)")
	f.Bool("strict-rules", false, "treat rule file problems as errors")
	f.StringSlice("exclude", nil, "additional paths or globs to exclude")
	f.Int("threads", 0, "number of files scanned concurrently")
	f.Int64("max-file-size", 0, "skip files larger than this many bytes (0: no limit)")
	f.Bool("no-baseline", false, "ignore baseline suppressions")
	f.String("webhook-url", "", "webhook URL for alerts")
	f.String("webhook-secret", "", "webhook secret for signing")
	f.String("history-db", "", "record the run in this SQLite database")
	f.Int("fail-under-security", 0, "fail when the security score is below this value")
	f.Int("fail-under-style", 0, "fail when the style score is below this value")
	return cmd
}

func runScan(ctx context.Context, stdout io.Writer, config *scanner.ScannerConfig, sf scanFlags, args []string, logger *zap.Logger) error {
	started := time.Now().UTC()

	set, err := rules.Load(config.SecurityRules, config.StyleRules, rules.LoadOptions{
		Strict: config.StrictRules,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	targets, err := source.EnumerateAll(args, source.Options{
		Exclude:     config.Exclude,
		MaxFileSize: config.MaxFileSize,
		Since:       sf.since,
		CommitRange: sf.commitRange,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	opts := scanner.Options{Threads: config.Threads, Logger: logger}
	if !config.NoBaseline {
		bl, err := baseline.Load(baselineDir(args[0]))
		if err != nil {
			return fmt.Errorf("failed to load baseline: %w", err)
		}
		if bl.Len() > 0 {
			logger.Debug("baseline loaded", zap.String("path", bl.Path()), zap.Int("entries", bl.Len()))
			opts.Suppress = bl.IsSuppressed
		}
	}

	result, err := scanner.New(set, opts).ScanTargets(ctx, targets)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	merged := result.Merged
	logger.Info("scan complete", zap.String("summary", output.Summary(merged)))

	outType, _ := output.ParseOutputType(sf.outputType)
	if err := writeReport(result, outType, sf.outputFile, stdout); err != nil {
		return err
	}
	if sf.jsonFile != "" {
		if err := writeReport(result, output.OutputTypeJSON, sf.jsonFile, stdout); err != nil {
			return err
		}
	}
	if sf.mdFile != "" {
		if err := writeReport(result, output.OutputTypeMarkdown, sf.mdFile, stdout); err != nil {
			return err
		}
	}

	runID := alert.NewRunID()
	if config.HistoryDB != "" {
		if err := recordRun(ctx, config.HistoryDB, runID, started, merged); err != nil {
			return err
		}
	}

	if config.WebhookURL != "" && len(merged.Findings) > 0 {
		wh := alert.NewWebhook(config.WebhookURL, config.WebhookSecret, logger)
		payload := alert.NewPayload(runID, output.Summary(merged), merged)
		payload.GitRef = firstNonEmpty(sf.commitRange, sf.since)
		if err := wh.Send(ctx, payload); err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
	}

	if sf.noFail {
		return nil
	}
	if failing(merged, config, rules.ParseSeverity(sf.severity)) {
		if merged.Stats.Suppressed > 0 {
			return exitCode(exitSuppressed)
		}
		return exitCode(exitFailing)
	}
	return nil
}

// failing reports whether a run should fail: any finding at or above
// threshold, or a score below its configured floor.
func failing(report scanner.Report, config *scanner.ScannerConfig, threshold rules.Severity) bool {
	for _, f := range report.Findings {
		if f.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return report.Scores.Security < config.FailUnderSecurity ||
		report.Scores.Style < config.FailUnderStyle
}

func writeReport(result scanner.Result, outType output.OutputType, path string, stdout io.Writer) error {
	if path == "" {
		if err := output.WriteReport(result, outType, stdout); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := output.WriteReport(result, outType, f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func recordRun(ctx context.Context, path, runID string, started time.Time, report scanner.Report) error {
	db, err := history.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.SaveRun(ctx, history.Run{
		ID:        runID,
		StartedAt: started,
		Target:    report.Target,
		Scores:    report.Scores,
		Stats:     report.Stats,
		Findings:  report.Findings,
	})
}

// baselineDir is where the baseline for a target lives: the target
// itself when it is a directory, otherwise its parent.
func baselineDir(target string) string {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return filepath.Dir(target)
	}
	return target
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
