package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/ejagojo/VibeScan/internal/scanner"
	"github.com/ejagojo/VibeScan/pkg/rules"
)

// OutputType defines the supported output formats
type OutputType string

const (
	OutputTypeConsole  OutputType = "console"
	OutputTypeJSON     OutputType = "json"
	OutputTypeSARIF    OutputType = "sarif"
	OutputTypeMarkdown OutputType = "markdown"
)

// ParseOutputType accepts the format names used on the command line.
func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(strings.ToLower(strings.TrimSpace(s))); t {
	case OutputTypeConsole, OutputTypeJSON, OutputTypeSARIF, OutputTypeMarkdown:
		return t, nil
	case "md":
		return OutputTypeMarkdown, nil
	}
	return "", fmt.Errorf("unsupported output type: %s", s)
}

// WriteReport writes the merged result to w in the given format
func WriteReport(result scanner.Result, outputType OutputType, w io.Writer) error {
	switch outputType {
	case OutputTypeConsole:
		return writeConsole(result, w)
	case OutputTypeJSON:
		return writeJSON(result, w)
	case OutputTypeSARIF:
		return writeSARIF(result.Merged.Findings, w)
	case OutputTypeMarkdown:
		return writeMarkdown(result.Merged, w)
	default:
		return fmt.Errorf("unsupported output type: %s", outputType)
	}
}

// writeConsole writes a colored score header followed by a findings table
func writeConsole(result scanner.Result, w io.Writer) error {
	merged := result.Merged
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Security: ")
	scoreColor(merged.Scores.Security).Fprintf(w, "%d/100", merged.Scores.Security)
	bold.Fprintf(w, "  Style: ")
	scoreColor(merged.Scores.Style).Fprintf(w, "%d/100", merged.Scores.Style)
	fmt.Fprintf(w, "  Files: %d  Findings: %d", merged.Stats.Files, merged.Stats.Findings)
	if merged.Stats.Suppressed > 0 {
		fmt.Fprintf(w, "  Suppressed: %d", merged.Stats.Suppressed)
	}
	fmt.Fprintln(w)

	if len(result.Targets) > 1 {
		for _, r := range result.Targets {
			fmt.Fprintf(w, "  %s: security %d/100, style %d/100, %d findings\n",
				r.Target, r.Scores.Security, r.Scores.Style, r.Stats.Findings)
		}
	}

	if len(merged.Findings) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No issues found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Severity", "Type", "Rule", "File", "Line", "Message"})
	for _, f := range merged.Findings {
		t.AppendRow(table.Row{
			f.Severity,
			f.Category,
			f.RuleID,
			f.Path,
			f.Line,
			f.Message,
		})
	}
	t.Render()
	return nil
}

func scoreColor(score int) *color.Color {
	switch {
	case score >= 90:
		return color.New(color.FgGreen, color.Bold)
	case score >= 70:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

type jsonReport struct {
	Scores   scanner.Scores    `json:"scores"`
	Stats    scanner.Stats     `json:"stats"`
	Findings []scanner.Finding `json:"findings"`
	Targets  []scanner.Report  `json:"targets"`
}

// writeJSON writes the merged scores, stats and findings plus each target report
func writeJSON(result scanner.Result, w io.Writer) error {
	report := jsonReport{
		Scores:   result.Merged.Scores,
		Stats:    result.Merged.Stats,
		Findings: result.Merged.Findings,
		Targets:  result.Targets,
	}
	if report.Findings == nil {
		report.Findings = []scanner.Finding{}
	}
	if report.Targets == nil {
		report.Targets = []scanner.Report{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// writeMarkdown writes the report layout used for PR comments and artifacts
func writeMarkdown(report scanner.Report, w io.Writer) error {
	var b strings.Builder
	b.WriteString("# VibeScan Report\n\n")
	fmt.Fprintf(&b, "SecurityScore: %d/100 | StyleScore: %d/100 | Files: %d | Findings: %d",
		report.Scores.Security, report.Scores.Style, report.Stats.Files, report.Stats.Findings)
	if report.Stats.Suppressed > 0 {
		fmt.Fprintf(&b, " | Suppressed: %d", report.Stats.Suppressed)
	}
	b.WriteString("\n\n## Findings\n\n")

	if len(report.Findings) == 0 {
		b.WriteString("No issues found.\n")
	} else {
		b.WriteString("| Level | Type | Rule | File:Line | Message |\n|---|---|---|---|---|\n")
		for _, f := range report.Findings {
			fmt.Fprintf(&b, "| %s | %s | `%s` | `%s:%d` | %s |\n",
				f.Severity,
				categoryLabel(f.Category),
				mdEscape(f.RuleID),
				mdEscape(f.Path),
				f.Line,
				mdEscape(f.Message),
			)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func categoryLabel(c rules.Category) string {
	if c == rules.CategorySecurity {
		return "SEC"
	}
	return "STYLE"
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID                   string            `json:"id"`
	ShortDescription     sarifText         `json:"shortDescription"`
	DefaultConfiguration sarifRuleConfig   `json:"defaultConfiguration"`
	Properties           map[string]string `json:"properties,omitempty"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifText       `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           sarifRegion   `json:"region"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// writeSARIF writes findings in SARIF format
func writeSARIF(findings []scanner.Finding, w io.Writer) error {
	unique := lo.UniqBy(findings, func(f scanner.Finding) string { return f.RuleID })
	sarifRules := lo.Map(unique, func(f scanner.Finding, _ int) sarifRule {
		return sarifRule{
			ID:                   f.RuleID,
			ShortDescription:     sarifText{Text: f.Message},
			DefaultConfiguration: sarifRuleConfig{Level: mapSeverityToLevel(f.Severity)},
			Properties:           map[string]string{"category": string(f.Category)},
		}
	})
	results := lo.Map(findings, func(f scanner.Finding, _ int) sarifResult {
		return sarifResult{
			RuleID:  f.RuleID,
			Level:   mapSeverityToLevel(f.Severity),
			Message: sarifText{Text: f.Message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifact{URI: toURI(f.Path)},
					Region:           sarifRegion{StartLine: f.Line},
				},
			}},
		}
	})

	report := sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "VibeScan",
				InformationURI: "https://github.com/ejagojo/VibeScan",
				Rules:          sarifRules,
			}},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func toURI(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// mapSeverityToLevel maps rule severities to SARIF levels. Unknown
// severities weigh as MEDIUM and are reported as warnings.
func mapSeverityToLevel(severity rules.Severity) string {
	switch severity {
	case rules.SeverityHigh:
		return "error"
	case rules.SeverityMedium:
		return "warning"
	case rules.SeverityLow:
		return "note"
	default:
		return "warning"
	}
}

// Summary is a one-line score summary used in logs and webhook titles.
func Summary(report scanner.Report) string {
	return fmt.Sprintf("security %d/100, style %d/100, %d findings",
		report.Scores.Security, report.Scores.Style, report.Stats.Findings)
}
