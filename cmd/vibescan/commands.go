package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ejagojo/VibeScan/internal/baseline"
	"github.com/ejagojo/VibeScan/internal/history"
	"github.com/ejagojo/VibeScan/internal/output"
	"github.com/ejagojo/VibeScan/internal/scanner"
	"github.com/ejagojo/VibeScan/pkg/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rule files",
	}
	cmd.PersistentFlags().String("rules-sec", "", "security rules file (default: built-in)")
	cmd.PersistentFlags().String("rules-style", "", "style rules file (default: built-in)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the active rule set",
		Args:  cobra.NoArgs,
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

			set, err := rules.Load(config.SecurityRules, config.StyleRules, rules.LoadOptions{Logger: logger})
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Category", "Kind", "Severity", "Active", "Description"})
			for _, r := range set.All() {
				t.AppendRow(table.Row{r.ID, r.Category, r.Kind, r.Severity, r.Active(), r.Description})
			}
			t.Render()
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule file strictly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read rule file: %w", err)
			}
			rs, err := rules.Parse(data, rules.CategorySecurity, rules.LoadOptions{Strict: true})
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, r := range rs {
				if r.Err() != nil {
					return fmt.Errorf("%s: rule %q: %w", args[0], r.ID, r.Err())
				}
				if !r.Active() {
					return fmt.Errorf("%s: rule %q can never match", args[0], r.ID)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", args[0], len(rs))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show one rule in detail",
		Args:  cobra.ExactArgs(1),
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

			set, err := rules.Load(config.SecurityRules, config.StyleRules, rules.LoadOptions{Logger: logger})
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}
			r, ok := set.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown rule %q", args[0])
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:          %s\n", r.ID)
			fmt.Fprintf(w, "Category:    %s\n", r.Category)
			fmt.Fprintf(w, "Kind:        %s\n", r.Kind)
			fmt.Fprintf(w, "Severity:    %s\n", r.Severity)
			fmt.Fprintf(w, "Description: %s\n", r.Description)
			if r.Pattern != "" {
				fmt.Fprintf(w, "Pattern:     %s\n", r.Pattern)
			}
			if r.Callee != "" {
				fmt.Fprintf(w, "Callee:      %s\n", r.Callee)
			}
			if r.Example != "" {
				fmt.Fprintf(w, "Example:     %s\n", r.Example)
			}
			return nil
		},
	}

	cmd.AddCommand(list, validate, show)
	return cmd
}

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baseline suppressions",
		Long:  `Add or list findings in the baseline suppression file.`,
	}
	cmd.PersistentFlags().String("dir", ".", "directory holding the baseline file")

	add := &cobra.Command{
		Use:   "add <rule-id> <path> <line>",
		Short: "Add a finding to the baseline",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[2])
			if err != nil || line < 1 {
				return fmt.Errorf("invalid line %q", args[2])
			}
			dir, _ := cmd.Flags().GetString("dir")
			bl, err := baseline.Load(dir)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}

			if err := bl.Add(scanner.Finding{RuleID: args[0], Path: args[1], Line: line}); err != nil {
				return fmt.Errorf("failed to add finding: %w", err)
			}
			if err := bl.Save(); err != nil {
				return fmt.Errorf("failed to save baseline: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %s at %s:%d to %s\n", args[0], args[1], line, bl.Path())
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List baseline suppressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			bl, err := baseline.Load(dir)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}
			for _, f := range bl.Findings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s:%d\n", f.RuleID, f.Path, f.Line)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded scan runs",
	}
	cmd.PersistentFlags().String("history-db", "", "SQLite history database")

	openDB := func(cmd *cobra.Command) (*history.DB, error) {
		config, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		if config.HistoryDB == "" {
			return nil, fmt.Errorf("no history database configured (use --history-db)")
		}
		return history.Open(config.HistoryDB)
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Run", "Started", "Target", "Security", "Style", "Files", "Findings", "Suppressed"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID,
					r.StartedAt.Format(time.RFC3339),
					r.Target,
					r.Scores.Security,
					r.Scores.Style,
					r.Stats.Files,
					r.Stats.Findings,
					r.Stats.Suppressed,
				})
			}
			t.Render()
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	var outputType string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outType, err := output.ParseOutputType(outputType)
			if err != nil {
				return err
			}
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := db.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := scanner.Report{
				Target:   run.Target,
				Findings: run.Findings,
				Scores:   run.Scores,
				Stats:    run.Stats,
			}
			if report.Findings == nil {
				report.Findings = []scanner.Finding{}
			}
			return output.WriteReport(scanner.Result{Targets: []scanner.Report{report}, Merged: report}, outType, cmd.OutOrStdout())
		},
	}
	show.Flags().StringVarP(&outputType, "type", "t", "console", "output type (console, json, sarif, markdown)")

	cmd.AddCommand(list, show)
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := scanner.SaveConfig(scanner.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
