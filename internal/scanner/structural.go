package scanner

import (
	"strings"

	"github.com/ejagojo/VibeScan/pkg/rules"
)

// CallNode is a call expression. Callee is empty unless the called
// expression is a bare name.
type CallNode struct {
	Callee string
	Line   int
}

// FunctionDefNode is a function definition with its parameter names in
// declared order.
type FunctionDefNode struct {
	Name   string
	Params []string
	Line   int
}

// Visitor receives the node kinds structural rules react to. Every other
// node is walked without a callback.
type Visitor interface {
	VisitCall(CallNode)
	VisitFunctionDef(FunctionDefNode)
}

// syntaxTree is a parsed source file that can be walked.
type syntaxTree interface {
	Walk(Visitor)
}

// structuralRules indexes the STRUCTURAL rules of one collection by the
// node shape they react to.
type structuralRules struct {
	calls  map[string][]rules.Rule
	params []rules.Rule
}

func indexStructural(rs []rules.Rule) structuralRules {
	idx := structuralRules{calls: make(map[string][]rules.Rule)}
	for _, r := range rs {
		if r.Kind != rules.KindStructural {
			continue
		}
		switch r.Family() {
		case rules.FamilyCall:
			idx.calls[r.Callee] = append(idx.calls[r.Callee], r)
		case rules.FamilyShortParams:
			idx.params = append(idx.params, r)
		}
	}
	return idx
}

func (idx structuralRules) empty() bool {
	return len(idx.calls) == 0 && len(idx.params) == 0
}

// ruleVisitor turns visited nodes into findings for one rule collection.
type ruleVisitor struct {
	rules    structuralRules
	path     string
	findings []Finding
}

func (v *ruleVisitor) VisitCall(c CallNode) {
	if c.Callee == "" {
		return
	}
	for _, r := range v.rules.calls[c.Callee] {
		v.findings = append(v.findings, newFinding(r, v.path, match{line: c.Line, message: r.Description}))
	}
}

func (v *ruleVisitor) VisitFunctionDef(f FunctionDefNode) {
	if len(v.rules.params) == 0 {
		return
	}
	var short []string
	for _, p := range f.Params {
		if len([]rune(p)) == 1 {
			short = append(short, p)
		}
	}
	if len(short) == 0 {
		return
	}
	msg := "Single-letter parameters: " + strings.Join(short, ", ")
	for _, r := range v.rules.params {
		v.findings = append(v.findings, newFinding(r, v.path, match{line: f.Line, message: msg}))
	}
}

// matchStructural walks tree once for one rule collection.
func matchStructural(tree syntaxTree, idx structuralRules, path string) []Finding {
	if tree == nil || idx.empty() {
		return nil
	}
	v := &ruleVisitor{rules: idx, path: path}
	tree.Walk(v)
	return v.findings
}
