package scanner

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ejagojo/VibeScan/pkg/rules"
)

func newRuleSet(sec, style []rules.RuleConfig) *rules.Set {
	set := &rules.Set{}
	for _, rc := range sec {
		set.Security = append(set.Security, rules.New(rc, rules.CategorySecurity))
	}
	for _, rc := range style {
		set.Style = append(set.Style, rules.New(rc, rules.CategoryStyle))
	}
	return set
}

func newTestScanner(t *testing.T, set *rules.Set) *Scanner {
	t.Helper()
	return New(set, Options{Threads: 2, Logger: zaptest.NewLogger(t)})
}

var callRules = []rules.RuleConfig{
	{ID: "insecure-eval", Description: "eval", Severity: "HIGH", CheckTool: "ast"},
	{ID: "insecure-exec", Description: "exec", Severity: "HIGH", CheckTool: "ast"},
	{ID: "dynamic-import", Description: "__import__", Severity: "MEDIUM", CheckTool: "ast"},
}

var paramRule = rules.RuleConfig{ID: "single-letter-args", Description: "short params", Severity: "LOW", CheckTool: "ast"}

func lines(findings []Finding) []int {
	out := make([]int, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Line)
	}
	return out
}

func TestScan_EmptyTarget(t *testing.T) {
	s := newTestScanner(t, newRuleSet(callRules, []rules.RuleConfig{paramRule}))

	report, err := s.Scan(context.Background(), "empty", nil)
	require.NoError(t, err)

	assert.Empty(t, report.Findings)
	assert.NotNil(t, report.Findings)
	assert.Equal(t, PerfectScores, report.Scores)
	assert.Equal(t, Stats{}, report.Stats)
}

func TestScanSource_Pattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		content string
		want    []int
	}{
		{"RepeatedLines", "foo", "foo\nbar\nfoo", []int{1, 3}},
		{"LineAnchors", "^bar$", "foo\nbar\nbaz", []int{2}},
		{"DotDoesNotSpanLines", "foo.bar", "foo\nbar", []int{}},
		{"EveryMatchCounts", "a|b", "ab\n", []int{1, 1}},
		{"NonASCIIBeforeMatch", "foo", "héllo wörld\n∑\nfoo", []int{3}},
		{"Lookahead", `yaml\.load\((?!.*SafeLoader)`, "yaml.load(a)\nyaml.load(b, Loader=SafeLoader)\n", []int{1}},
		{"MatchAfterTrailingNewline", "^$", "x\n", []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newRuleSet(nil, []rules.RuleConfig{{ID: "p", Description: "pattern hit", Pattern: tt.pattern}})
			findings := newTestScanner(t, set).ScanSource(Source{Path: "a.py", Data: []byte(tt.content)})
			assert.Equal(t, tt.want, lines(findings))
			for _, f := range findings {
				assert.Equal(t, "pattern hit", f.Message)
				assert.Equal(t, "a.py", f.Path)
			}
		})
	}
}

func TestScanSource_InvalidPattern(t *testing.T) {
	set := newRuleSet([]rules.RuleConfig{
		{ID: "broken", Pattern: "(unbalanced"},
		{ID: "valid", Pattern: "foo", Severity: "HIGH"},
	}, nil)

	var findings []Finding
	require.NotPanics(t, func() {
		findings = newTestScanner(t, set).ScanSource(Source{Path: "a.py", Data: []byte("foo\n(unbalanced\n")})
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "valid", findings[0].RuleID)
}

func TestScanSource_CallRules(t *testing.T) {
	src := "import os\nx = 1\n\neval(x)\nprint(x)\n"
	set := newRuleSet(callRules, nil)

	findings := newTestScanner(t, set).ScanSource(Source{Path: "calls.py", Data: []byte(src)})
	require.Len(t, findings, 1)
	assert.Equal(t, "insecure-eval", findings[0].RuleID)
	assert.Equal(t, 4, findings[0].Line)
	assert.Equal(t, rules.SeverityHigh, findings[0].Severity)
	assert.Equal(t, rules.CategorySecurity, findings[0].Category)
}

func TestScanSource_CallRulesPerName(t *testing.T) {
	src := "exec(code)\n__import__(name)\nobj.eval(x)\neval(exec(y))\n"
	findings := newTestScanner(t, newRuleSet(callRules, nil)).ScanSource(Source{Path: "a.py", Data: []byte(src)})

	got := make([]string, 0, len(findings))
	for _, f := range findings {
		got = append(got, fmt.Sprintf("%s:%d", f.RuleID, f.Line))
	}
	assert.ElementsMatch(t, []string{
		"insecure-exec:1",
		"dynamic-import:2",
		"insecure-eval:4",
		"insecure-exec:4",
	}, got)
}

func TestScanSource_CallRulesModernSyntax(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "FString",
			src:  "name = 'a'\nprint(f\"hi {name}\")\neval(x)\n",
			want: []string{"insecure-eval:3"},
		},
		{
			name: "CallInsideFString",
			src:  "print(f\"{eval(x)}\")\n",
			want: []string{"insecure-eval:1"},
		},
		{
			name: "VariableAnnotation",
			src:  "x: int = 1\neval(x)\n",
			want: []string{"insecure-eval:2"},
		},
		{
			name: "AsyncFunction",
			src:  "async def run(code):\n    await sleep(1)\n    exec(code)\n",
			want: []string{"insecure-exec:3"},
		},
		{
			name: "Walrus",
			src:  "if (n := len(names)) > 1:\n    __import__(names[0])\n",
			want: []string{"dynamic-import:2"},
		},
		{
			name: "MatrixMultiply",
			src:  "c = a @ b\neval(c)\n",
			want: []string{"insecure-eval:2"},
		},
		{
			name: "PositionalOnly",
			src:  "def run(code, /, mode):\n    return eval(code)\n",
			want: []string{"insecure-eval:2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := newTestScanner(t, newRuleSet(callRules, nil)).ScanSource(Source{Path: "a.py", Data: []byte(tt.src)})

			got := make([]string, 0, len(findings))
			for _, f := range findings {
				got = append(got, fmt.Sprintf("%s:%d", f.RuleID, f.Line))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanSource_ShortParams(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    []string
		wantLns []int
	}{
		{
			name:    "MixedParams",
			src:     "def f(a, b, xyz):\n    return a\n",
			want:    []string{"Single-letter parameters: a, b"},
			wantLns: []int{1},
		},
		{
			name:    "LongParams",
			src:     "def f(xyz):\n    return xyz\n",
			want:    []string{},
			wantLns: []int{},
		},
		{
			name:    "SelfIsNotSpecial",
			src:     "class C:\n    def m(self, x):\n        return x\n",
			want:    []string{"Single-letter parameters: x"},
			wantLns: []int{2},
		},
		{
			name:    "AsyncFunction",
			src:     "async def f(a):\n    await g(a)\n",
			want:    []string{"Single-letter parameters: a"},
			wantLns: []int{1},
		},
		{
			name:    "DecoratedFunctionReportsDefLine",
			src:     "@dec\ndef f(a):\n    pass\n",
			want:    []string{"Single-letter parameters: a"},
			wantLns: []int{2},
		},
		{
			name:    "AnnotationsAndDefaults",
			src:     "def f(a: int, b=1, c: str = \"\", xyz=2):\n    pass\n",
			want:    []string{"Single-letter parameters: a, b, c"},
			wantLns: []int{1},
		},
		{
			name:    "EveryParameterKind",
			src:     "def f(a, /, b, *c, d, **e):\n    pass\n",
			want:    []string{"Single-letter parameters: a, b, c, d, e"},
			wantLns: []int{1},
		},
		{
			name:    "BareStarAndLongStars",
			src:     "def f(*, key, **kwargs):\n    pass\n",
			want:    []string{},
			wantLns: []int{},
		},
		{
			name:    "LambdaIsNotADefinition",
			src:     "g = lambda a: a\n",
			want:    []string{},
			wantLns: []int{},
		},
		{
			name:    "NestedFunctions",
			src:     "def outer(a):\n    def inner(b, c):\n        return b\n    return inner\n",
			want:    []string{"Single-letter parameters: a", "Single-letter parameters: b, c"},
			wantLns: []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newRuleSet(nil, []rules.RuleConfig{paramRule})
			findings := newTestScanner(t, set).ScanSource(Source{Path: "a.py", Data: []byte(tt.src)})

			msgs := make([]string, 0, len(findings))
			for _, f := range findings {
				msgs = append(msgs, f.Message)
				assert.Equal(t, "single-letter-args", f.RuleID)
				assert.Equal(t, rules.CategoryStyle, f.Category)
			}
			assert.Equal(t, tt.want, msgs)
			assert.Equal(t, tt.wantLns, lines(findings))
		})
	}
}

func TestScanSource_NestedCalls(t *testing.T) {
	src := "def run(a):\n    def inner():\n        return eval(a)\n    return inner()\n"
	set := newRuleSet(callRules, []rules.RuleConfig{paramRule})

	findings := newTestScanner(t, set).ScanSource(Source{Path: "a.py", Data: []byte(src)})
	require.Len(t, findings, 2)
	assert.Equal(t, "insecure-eval", findings[0].RuleID)
	assert.Equal(t, 3, findings[0].Line)
	assert.Equal(t, "single-letter-args", findings[1].RuleID)
	assert.Equal(t, 1, findings[1].Line)
}

func TestScanSource_UnparsableSource(t *testing.T) {
	src := "def broken(:\n    eval(x)\n"
	set := newRuleSet(append([]rules.RuleConfig{{ID: "eval-text", Pattern: `\beval\(`}}, callRules...), nil)

	findings := newTestScanner(t, set).ScanSource(Source{Path: "broken.py", Data: []byte(src)})
	require.Len(t, findings, 1)
	assert.Equal(t, "eval-text", findings[0].RuleID)
	assert.Equal(t, 2, findings[0].Line)
}

func TestScanSource_InvalidUTF8(t *testing.T) {
	data := append([]byte{0xff, 0xfe, '#', '\n'}, []byte("foo = 1\n")...)
	set := newRuleSet(nil, []rules.RuleConfig{{ID: "foo", Pattern: "foo"}})

	findings := newTestScanner(t, set).ScanSource(Source{Path: "bin.py", Data: data})
	require.Len(t, findings, 1)
	assert.Equal(t, 2, findings[0].Line)
}

func TestScanSource_Order(t *testing.T) {
	src := "eval(x)\ndef f(a):\n    pass\n"
	set := newRuleSet(
		append([]rules.RuleConfig{{ID: "sec-pattern", Pattern: "eval"}}, callRules...),
		[]rules.RuleConfig{paramRule, {ID: "style-pattern", Pattern: "pass"}},
	)

	findings := newTestScanner(t, set).ScanSource(Source{Path: "a.py", Data: []byte(src)})
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.RuleID)
	}
	assert.Equal(t, []string{"sec-pattern", "style-pattern", "insecure-eval", "single-letter-args"}, ids)
}

func TestScan_Idempotent(t *testing.T) {
	sources := []Source{
		{Path: "a.py", Data: []byte("eval(x)\nfoo\n")},
		{Path: "b.py", Data: []byte("def f(a, b):\n    return foo\n")},
	}
	set := newRuleSet(callRules, []rules.RuleConfig{paramRule, {ID: "foo", Pattern: "foo", Severity: "LOW"}})
	s := newTestScanner(t, set)

	first, err := s.Scan(context.Background(), "t", sources)
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), "t", sources)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Stats{Files: 2, Findings: 4}, first.Stats)
	assert.Equal(t, Scores{Security: 93, Style: 97}, first.Scores)
}

func TestScan_PreservesSourceOrder(t *testing.T) {
	var sources []Source
	for i := 0; i < 50; i++ {
		sources = append(sources, Source{Path: fmt.Sprintf("f%02d.py", i), Data: []byte("foo\n")})
	}
	set := newRuleSet(nil, []rules.RuleConfig{{ID: "foo", Pattern: "foo"}})

	report, err := New(set, Options{Threads: 7}).Scan(context.Background(), "many", sources)
	require.NoError(t, err)
	require.Len(t, report.Findings, 50)
	for i, f := range report.Findings {
		assert.Equal(t, sources[i].Path, f.Path)
	}
}

func TestScan_Suppress(t *testing.T) {
	set := newRuleSet([]rules.RuleConfig{{ID: "foo", Pattern: "foo", Severity: "HIGH"}}, nil)
	s := New(set, Options{Suppress: func(f Finding) bool { return f.Line == 1 }})

	report, err := s.Scan(context.Background(), "t", []Source{{Path: "a.py", Data: []byte("foo\nfoo\n")}})
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, 2, report.Findings[0].Line)
	assert.Equal(t, Stats{Files: 1, Findings: 1, Suppressed: 1}, report.Stats)
	assert.Equal(t, 93, report.Scores.Security)
}

func TestScan_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := newRuleSet(nil, []rules.RuleConfig{{ID: "foo", Pattern: "foo"}})
	_, err := New(set, Options{}).Scan(ctx, "t", []Source{{Path: "a.py", Data: []byte("foo")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanTargets(t *testing.T) {
	set := newRuleSet([]rules.RuleConfig{{ID: "foo", Pattern: "foo", Severity: "HIGH"}}, nil)
	s := newTestScanner(t, set)

	result, err := s.ScanTargets(context.Background(), []Target{
		{Name: "one", Sources: []Source{{Path: "one/a.py", Data: []byte("foo\n")}}},
		{Name: "two", Sources: []Source{{Path: "two/a.py", Data: []byte("bar\n")}, {Path: "two/b.py", Data: []byte("")}}},
	})
	require.NoError(t, err)

	require.Len(t, result.Targets, 2)
	assert.Equal(t, 93, result.Targets[0].Scores.Security)
	assert.Equal(t, 100, result.Targets[1].Scores.Security)
	assert.Equal(t, Scores{Security: 96, Style: 100}, result.Merged.Scores)
	assert.Equal(t, Stats{Files: 3, Findings: 1}, result.Merged.Stats)
	assert.Equal(t, "one, two", result.Merged.Target)
}

func TestScanTargets_None(t *testing.T) {
	result, err := newTestScanner(t, &rules.Set{}).ScanTargets(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Targets)
	assert.Equal(t, PerfectScores, result.Merged.Scores)
	assert.Equal(t, Stats{}, result.Merged.Stats)
}
