package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ejagojo/VibeScan/internal/logging"
	"github.com/ejagojo/VibeScan/internal/scanner"
)

var version = "dev" // Set by ldflags

// Exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitFailing    = 3
	exitSuppressed = 5
)

// exitCode carries a non-zero status out of a command that otherwise
// succeeded.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// exitStatus maps a command error to the process exit code, printing
// real errors in red.
func exitStatus(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

// configKeys are the flags MergeConfig understands. Only flags the user
// set explicitly override the config file.
var configKeys = []string{
	"rules-sec", "rules-style", "strict-rules", "exclude", "threads",
	"max-file-size", "no-baseline", "webhook-url", "webhook-secret",
	"history-db", "fail-under-security", "fail-under-style",
	"log-level", "log-format",
}

// loadConfig reads the config file named by --config and layers
// environment variables and changed flags over it.
func loadConfig(cmd *cobra.Command) (*scanner.ScannerConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	config, err := scanner.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := make(map[string]interface{})
	fs := cmd.Flags()
	for _, name := range configKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "bool":
			flags[name], _ = fs.GetBool(name)
		case "int":
			flags[name], _ = fs.GetInt(name)
		case "int64":
			flags[name], _ = fs.GetInt64(name)
		case "stringSlice":
			flags[name], _ = fs.GetStringSlice(name)
		default:
			flags[name] = f.Value.String()
		}
	}
	return scanner.MergeConfig(config, flags), nil
}

func newLogger(config *scanner.ScannerConfig) (*zap.Logger, error) {
	logger, err := logging.New(config.LogLevel, config.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vibescan",
		Short: "Python security and style scanner",
		Long: `VibeScan scans Python source trees for insecure constructs and style
problems and reports a security score and a style score out of 100.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", scanner.DefaultConfigPath(), "path to configuration file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console, json)")

	root.AddCommand(newScanCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newBaselineCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newInitCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitStatus(err, os.Stderr))
}
