package rules

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern evaluation against one file.
const DefaultMatchTimeout = 2 * time.Second

// Severity is the normalized, upper-case severity of a rule.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ParseSeverity upper-cases s. An empty value becomes MEDIUM; unrecognised
// values are kept as written and weigh like MEDIUM.
func ParseSeverity(s string) Severity {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return SeverityMedium
	}
	return Severity(s)
}

// Known reports whether s is one of LOW, MEDIUM or HIGH.
func (s Severity) Known() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Weight is the score penalty of one finding of this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityHigh:
		return 7
	default:
		return 3
	}
}

// Rank orders severities LOW < MEDIUM < HIGH.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityHigh:
		return 3
	default:
		return 2
	}
}

// Category selects which score a rule's findings count against.
type Category string

const (
	CategorySecurity Category = "SECURITY"
	CategoryStyle    Category = "STYLE"
)

// Kind is the matcher a rule is evaluated with.
type Kind string

const (
	KindPattern    Kind = "PATTERN"
	KindStructural Kind = "STRUCTURAL"
)

// ParseKind maps a check_tool value to a Kind. Empty defaults to PATTERN.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regex", "pattern":
		return KindPattern
	case "ast", "structural":
		return KindStructural
	default:
		return Kind(strings.ToUpper(strings.TrimSpace(s)))
	}
}

// Family is the structural node shape a STRUCTURAL rule reacts to.
type Family int

const (
	FamilyNone Family = iota
	// FamilyCall fires on calls to the bare name in Rule.Callee.
	FamilyCall
	// FamilyShortParams fires on function definitions with one-letter parameters.
	FamilyShortParams
)

func (f Family) String() string {
	switch f {
	case FamilyCall:
		return "call"
	case FamilyShortParams:
		return "function-def"
	default:
		return "none"
	}
}

// builtinCallees maps the shipped call rules to the name each one flags.
var builtinCallees = map[string]string{
	"insecure-eval":  "eval",
	"insecure-exec":  "exec",
	"dynamic-import": "__import__",
}

const shortParamsRuleID = "single-letter-args"

// Rule is one immutable check. Build it with New.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	Severity    Severity
	Category    Category
	Kind        Kind
	Example     string
	// Callee is the bare function name a structural call rule flags.
	Callee string

	family     Family
	re         *regexp2.Regexp
	compileErr error
}

// New builds a rule from its configuration and resolves its matcher once.
func New(cfg RuleConfig, category Category) Rule {
	r := Rule{
		ID:          strings.TrimSpace(cfg.ID),
		Description: cfg.Description,
		Pattern:     cfg.Pattern,
		Severity:    ParseSeverity(cfg.Severity),
		Category:    category,
		Kind:        ParseKind(cfg.CheckTool),
		Example:     cfg.Example,
		Callee:      strings.TrimSpace(cfg.Callee),
	}

	switch r.Kind {
	case KindPattern:
		if r.Pattern == "" {
			break
		}
		re, err := regexp2.Compile(r.Pattern, regexp2.Multiline)
		if err != nil {
			r.compileErr = err
			break
		}
		re.MatchTimeout = DefaultMatchTimeout
		r.re = re
	case KindStructural:
		if r.Callee == "" {
			r.Callee = builtinCallees[r.ID]
		}
		switch {
		case r.Callee != "":
			r.family = FamilyCall
		case r.ID == shortParamsRuleID:
			r.family = FamilyShortParams
		}
	}
	return r
}

// Regexp returns the compiled pattern, or nil when the rule has none or
// it failed to compile.
func (r Rule) Regexp() *regexp2.Regexp { return r.re }

// Err returns the pattern compile error, if any.
func (r Rule) Err() error { return r.compileErr }

// Family returns the structural family of a STRUCTURAL rule.
func (r Rule) Family() Family { return r.family }

// Active reports whether the rule can ever produce a finding.
func (r Rule) Active() bool {
	switch r.Kind {
	case KindPattern:
		return r.re != nil
	case KindStructural:
		return r.family != FamilyNone
	}
	return false
}

// Set holds the two rule collections of a run. It is read-only once built.
type Set struct {
	Security []Rule
	Style    []Rule
}

// All returns security rules followed by style rules.
func (s *Set) All() []Rule {
	out := make([]Rule, 0, s.Len())
	out = append(out, s.Security...)
	return append(out, s.Style...)
}

// Len is the total number of rules.
func (s *Set) Len() int { return len(s.Security) + len(s.Style) }

// Lookup finds a rule by ID in either collection.
func (s *Set) Lookup(id string) (Rule, bool) {
	for _, r := range s.All() {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
