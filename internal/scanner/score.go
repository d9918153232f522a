package scanner

import "github.com/ejagojo/VibeScan/pkg/rules"

const maxScore = 100

// Score reduces findings to security and style scores. Each finding takes
// its severity weight off the score of its category; anything not
// SECURITY counts against style. Both scores are clamped to [0,100].
func Score(findings []Finding) Scores {
	sec, style := PerfectScores.Security, PerfectScores.Style
	for _, f := range findings {
		w := f.Severity.Weight()
		if f.Category == rules.CategorySecurity {
			sec -= w
		} else {
			style -= w
		}
	}
	return Scores{Security: clamp(sec), Style: clamp(style)}
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > maxScore:
		return maxScore
	}
	return score
}

// NewReport scores findings for a target that covered files sources.
func NewReport(target string, files int, findings []Finding) Report {
	if findings == nil {
		findings = []Finding{}
	}
	return Report{
		Target:   target,
		Findings: findings,
		Scores:   Score(findings),
		Stats:    Stats{Files: files, Findings: len(findings)},
	}
}
