package scanner

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ejagojo/VibeScan/pkg/rules"
)

// Options configures a Scanner
type Options struct {
	// Threads bounds how many files are scanned at once. Zero or less
	// uses one worker per CPU.
	Threads int
	// Suppress, when set, drops matching findings before scoring.
	Suppress func(Finding) bool
	Logger   *zap.Logger
}

// Target is a named set of sources scanned and scored together.
type Target struct {
	Name    string
	Sources []Source
}

// Scanner evaluates a rule set against sources. It holds no mutable
// state and is safe for concurrent use.
type Scanner struct {
	rules    *rules.Set
	opts     Options
	logger   *zap.Logger
	security structuralRules
	style    structuralRules
}

// New creates a Scanner for set. The set must not be modified afterwards.
func New(set *rules.Set, opts Options) *Scanner {
	if set == nil {
		set = &rules.Set{}
	}
	if opts.Threads <= 0 {
		opts.Threads = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		rules:    set,
		opts:     opts,
		logger:   logger,
		security: indexStructural(set.Security),
		style:    indexStructural(set.Style),
	}
}

// ScanSource runs both matchers against both rule collections for one
// file: pattern/security, pattern/style, structural/security,
// structural/style. It never fails.
func (s *Scanner) ScanSource(src Source) []Finding {
	content, degraded := Decode(src.Data)
	if degraded {
		s.logger.Debug("invalid UTF-8 replaced", zap.String("path", src.Path))
	}

	t := newText(content)
	var findings []Finding
	findings = append(findings, s.matchPatterns(s.rules.Security, t, src.Path)...)
	findings = append(findings, s.matchPatterns(s.rules.Style, t, src.Path)...)

	if s.security.empty() && s.style.empty() {
		return findings
	}

	var tree syntaxTree
	if pt, err := parsePython(context.Background(), content); err != nil {
		s.logger.Debug("structural rules skipped, source does not parse", zap.String("path", src.Path), zap.Error(err))
	} else {
		defer pt.Close()
		tree = pt
	}
	findings = append(findings, matchStructural(tree, s.security, src.Path)...)
	findings = append(findings, matchStructural(tree, s.style, src.Path)...)
	return findings
}

func (s *Scanner) matchPatterns(rs []rules.Rule, t *text, path string) []Finding {
	var out []Finding
	for _, r := range rs {
		if r.Kind != rules.KindPattern {
			continue
		}
		for _, m := range matchPattern(r, t, s.logger) {
			out = append(out, newFinding(r, path, m))
		}
	}
	return out
}

// Scan scans every source of a target and scores the result. Files are
// scanned in parallel; findings keep the order of sources. The only
// error is the context's.
func (s *Scanner) Scan(ctx context.Context, target string, sources []Source) (Report, error) {
	perFile := make([][]Finding, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Threads)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perFile[i] = s.ScanSource(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var findings []Finding
	suppressed := 0
	for _, fs := range perFile {
		for _, f := range fs {
			if s.opts.Suppress != nil && s.opts.Suppress(f) {
				suppressed++
				continue
			}
			findings = append(findings, f)
		}
	}

	report := NewReport(target, len(sources), findings)
	report.Stats.Suppressed = suppressed
	s.logger.Debug("target scanned",
		zap.String("target", target),
		zap.Int("files", report.Stats.Files),
		zap.Int("findings", report.Stats.Findings),
		zap.Int("security", report.Scores.Security),
		zap.Int("style", report.Scores.Style),
	)
	return report, nil
}

// ScanTargets scans targets one after another and merges their reports.
func (s *Scanner) ScanTargets(ctx context.Context, targets []Target) (Result, error) {
	reports := make([]Report, 0, len(targets))
	for _, t := range targets {
		r, err := s.Scan(ctx, t.Name, t.Sources)
		if err != nil {
			return Result{}, err
		}
		reports = append(reports, r)
	}
	return Result{Targets: reports, Merged: Merge(reports)}, nil
}
