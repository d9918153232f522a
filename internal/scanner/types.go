package scanner

import "github.com/ejagojo/VibeScan/pkg/rules"

// Source is one file handed to the scanner: its path as enumerated and
// its raw bytes.
type Source struct {
	Path string
	Data []byte
}

// Finding represents one match of a rule at a file location
type Finding struct {
	RuleID   string         `json:"rule_id"`
	Path     string         `json:"file"`
	Line     int            `json:"line"`
	Severity rules.Severity `json:"severity"`
	Category rules.Category `json:"category"`
	Message  string         `json:"message"`
}

// Scores holds the two independent scores, each within [0,100].
type Scores struct {
	Security int `json:"security"`
	Style    int `json:"style"`
}

// PerfectScores is the all-clear result of a scan with no findings.
var PerfectScores = Scores{Security: maxScore, Style: maxScore}

// Stats counts what a scan looked at.
type Stats struct {
	Files    int `json:"files"`
	Findings int `json:"findings"`
	// Suppressed counts findings dropped by a baseline before scoring.
	Suppressed int `json:"suppressed,omitempty"`
}

// Report is the outcome of scanning one target, or several merged.
type Report struct {
	Target   string    `json:"target"`
	Findings []Finding `json:"findings"`
	Scores   Scores    `json:"scores"`
	Stats    Stats     `json:"stats"`
}

// Result is what a multi-target run hands to the report writers.
type Result struct {
	Targets []Report `json:"targets"`
	Merged  Report   `json:"merged"`
}

// match is a line-anchored hit produced by a matcher before it becomes a Finding.
type match struct {
	line    int
	message string
}

func newFinding(r rules.Rule, path string, m match) Finding {
	line := m.line
	if line < 1 {
		line = 1
	}
	return Finding{
		RuleID:   r.ID,
		Path:     path,
		Line:     line,
		Severity: r.Severity,
		Category: r.Category,
		Message:  m.message,
	}
}
