package scanner

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ejagojo/VibeScan/pkg/rules"
)

// text is a decoded file prepared for pattern matching. regexp2 reports
// match offsets in runes, so newline positions are indexed in runes too.
type text struct {
	runes    []rune
	newlines []int
}

func newText(s string) *text {
	t := &text{runes: []rune(s)}
	for i, r := range t.runes {
		if r == '\n' {
			t.newlines = append(t.newlines, i)
		}
	}
	return t
}

// lineAt is 1 + the number of newlines strictly before rune offset off.
func (t *text) lineAt(off int) int {
	return sort.SearchInts(t.newlines, off) + 1
}

// matchPattern applies one PATTERN rule to a file. Rules without a usable
// pattern yield nothing. A match timeout keeps the matches found so far.
func matchPattern(r rules.Rule, t *text, logger *zap.Logger) []match {
	re := r.Regexp()
	if re == nil {
		return nil
	}

	var out []match
	m, err := re.FindRunesMatch(t.runes)
	for m != nil && err == nil {
		out = append(out, match{line: t.lineAt(m.Index), message: r.Description})
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		logger.Warn("pattern evaluation aborted", zap.String("rule", r.ID), zap.Error(err))
	}
	return out
}
