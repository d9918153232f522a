//go:build fuzz
// +build fuzz

package scanner

import (
	"context"
	"testing"

	"github.com/ejagojo/VibeScan/pkg/rules"
)

func FuzzScanSource(f *testing.F) {
	seeds := []string{
		"",
		"eval(x)\n",
		"def f(a, b, xyz):\n    return exec(a)\n",
		"def broken(:\n",
		"\xff\xfe\x00garbage",
		"class C:\n\tdef m(self, x):\n\t\tpass\n",
		"lambda a: __import__(a)\n",
	}
	for _, seed := range seeds {
		f.Add([]byte(seed))
	}

	set, err := rules.Load("", "", rules.LoadOptions{})
	if err != nil {
		f.Fatalf("failed to load default rules: %v", err)
	}
	s := New(set, Options{Threads: 1})

	f.Fuzz(func(t *testing.T, data []byte) {
		report, err := s.Scan(context.Background(), "fuzz", []Source{{Path: "fuzz.py", Data: data}})
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}

		for _, finding := range report.Findings {
			if finding.Line < 1 {
				t.Errorf("finding %s has line %d", finding.RuleID, finding.Line)
			}
		}
		if report.Scores.Security < 0 || report.Scores.Security > 100 ||
			report.Scores.Style < 0 || report.Scores.Style > 100 {
			t.Errorf("scores out of range: %+v", report.Scores)
		}
		if report.Stats.Findings != len(report.Findings) {
			t.Errorf("stats count %d findings, report has %d", report.Stats.Findings, len(report.Findings))
		}
	})
}
