package scanner

import (
	"strings"

	"github.com/samber/lo"
)

// Merge combines independently scanned targets. Scores are the floor
// average of each dimension, stats are summed and findings concatenated
// in target order. No reports merge to an all-clear result.
func Merge(reports []Report) Report {
	if len(reports) == 0 {
		return NewReport("", 0, nil)
	}

	n := len(reports)
	return Report{
		Target: strings.Join(lo.Map(reports, func(r Report, _ int) string { return r.Target }), ", "),
		Findings: lo.FlatMap(reports, func(r Report, _ int) []Finding {
			return r.Findings
		}),
		Scores: Scores{
			Security: lo.SumBy(reports, func(r Report) int { return r.Scores.Security }) / n,
			Style:    lo.SumBy(reports, func(r Report) int { return r.Scores.Style }) / n,
		},
		Stats: Stats{
			Files:      lo.SumBy(reports, func(r Report) int { return r.Stats.Files }),
			Findings:   lo.SumBy(reports, func(r Report) int { return r.Stats.Findings }),
			Suppressed: lo.SumBy(reports, func(r Report) int { return r.Stats.Suppressed }),
		},
	}
}
