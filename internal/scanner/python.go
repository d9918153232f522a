package scanner

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var errSyntax = errors.New("python source has syntax errors")

// pythonTree is a parsed Python module.
type pythonTree struct {
	tree *sitter.Tree
	src  []byte
}

// parsePython parses src as a Python module. Sources the grammar can only
// recover from with error nodes are rejected. Parser panics on hostile
// input are returned as errors.
func parsePython(ctx context.Context, src string) (t *pythonTree, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("python parser panic: %v", r)
		}
	}()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	data := []byte(src)
	tree, err := parser.ParseCtx(ctx, nil, data)
	if err != nil {
		return nil, err
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, errSyntax
	}
	return &pythonTree{tree: tree, src: data}, nil
}

// Close releases the parse tree.
func (t *pythonTree) Close() {
	t.tree.Close()
}

// Walk visits every node of the module in source order and reports calls
// and function definitions to v.
func (t *pythonTree) Walk(v Visitor) {
	stack := []*sitter.Node{t.tree.RootNode()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "call":
			call := CallNode{Line: lineOf(n)}
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
				call.Callee = fn.Content(t.src)
			}
			v.VisitCall(call)
		case "function_definition":
			fn := FunctionDefNode{Line: lineOf(n)}
			if name := n.ChildByFieldName("name"); name != nil {
				fn.Name = name.Content(t.src)
			}
			if params := n.ChildByFieldName("parameters"); params != nil {
				fn.Params = t.paramNames(params)
			}
			v.VisitFunctionDef(fn)
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}
}

// paramNames returns the name of every formal parameter in declared
// order, star and keyword-only parameters included.
func (t *pythonTree) paramNames(params *sitter.Node) []string {
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		if name := t.paramName(params.NamedChild(i)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (t *pythonTree) paramName(p *sitter.Node) string {
	switch p.Type() {
	case "identifier":
		return p.Content(t.src)
	case "default_parameter", "typed_default_parameter":
		if name := p.ChildByFieldName("name"); name != nil {
			return t.paramName(name)
		}
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if inner := p.NamedChild(0); inner != nil {
			return t.paramName(inner)
		}
	}
	return ""
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
