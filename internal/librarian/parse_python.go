package librarian

import (
	"sort"
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/aitoolkit/librarian-mcp/internal/parser"
)

// parsePython extracts a FileSummary from a Python source file's AST:
// docstrings, typed parameters, return annotations, base classes, one level of
// nested methods, flattened call sites and ALL-CAPS constants.
func parsePython(tree *tree_sitter.Tree, source []byte, relPath string) *FileSummary {
	root := tree.RootNode()
	summary := &FileSummary{RelativePath: relPath}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		def := unwrapDecorated(child)
		switch def.Kind() {
		case "class_definition":
			summary.Classes = append(summary.Classes, parsePythonClass(def, source))
		case "function_definition":
			summary.Functions = append(summary.Functions, parsePythonFunction(def, source))
		case "import_statement", "import_from_statement":
			summary.Imports = append(summary.Imports, parsePythonImport(def, source)...)
		case "expression_statement":
			if c, ok := parsePythonConstant(def, source); ok {
				summary.Constants = append(summary.Constants, c)
			}
		}
	}

	return summary
}

// unwrapDecorated returns the wrapped function/class definition for a
// decorated_definition node, or node itself otherwise.
func unwrapDecorated(node *tree_sitter.Node) *tree_sitter.Node {
	if node.Kind() != "decorated_definition" {
		return node
	}
	if inner := node.ChildByFieldName("definition"); inner != nil {
		return inner
	}
	return node
}

func parsePythonClass(node *tree_sitter.Node, source []byte) *ComponentRef {
	name := fieldText(node, "name", source)
	ref := &ComponentRef{
		Name:      name,
		Kind:      "class",
		StartLine: line(node.StartPosition()),
		EndLine:   line(node.EndPosition()),
		Docstring: pythonDocstring(node, source),
	}

	if super := node.ChildByFieldName("superclasses"); super != nil {
		for i := uint(0); i < super.NamedChildCount(); i++ {
			base := super.NamedChild(i)
			if base == nil {
				continue
			}
			switch base.Kind() {
			case "identifier", "attribute":
				ref.Bases = append(ref.Bases, parser.NodeText(base, source))
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return ref
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		if child == nil {
			continue
		}
		def := unwrapDecorated(child)
		if def.Kind() != "function_definition" {
			continue
		}
		method := parsePythonFunction(def, source)
		method.Kind = "method"
		if ref.Methods == nil {
			ref.Methods = make(map[string]*ComponentRef)
		}
		ref.Methods[method.Name] = method
	}
	return ref
}

func parsePythonFunction(node *tree_sitter.Node, source []byte) *ComponentRef {
	ref := &ComponentRef{
		Name:      fieldText(node, "name", source),
		Kind:      "function",
		StartLine: line(node.StartPosition()),
		EndLine:   line(node.EndPosition()),
		Docstring: pythonDocstring(node, source),
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		ref.Parameters = parsePythonParameters(params, source)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		ref.ReturnType = parser.NodeText(ret, source)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		ref.Calls = parsePythonCalls(body, source)
	}
	return ref
}

func parsePythonParameters(params *tree_sitter.Node, source []byte) []Param {
	var out []Param
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Kind() {
		case "identifier":
			out = append(out, Param{Name: parser.NodeText(p, source)})
		case "typed_parameter":
			name := firstChildOfKind(p, "identifier", source)
			typ := ""
			if t := p.ChildByFieldName("type"); t != nil {
				typ = parser.NodeText(t, source)
			}
			out = append(out, Param{Name: name, Type: typ})
		case "default_parameter":
			name := fieldText(p, "name", source)
			out = append(out, Param{Name: name})
		case "typed_default_parameter":
			name := fieldText(p, "name", source)
			typ := ""
			if t := p.ChildByFieldName("type"); t != nil {
				typ = parser.NodeText(t, source)
			}
			out = append(out, Param{Name: name, Type: typ})
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, Param{Name: parser.NodeText(p, source)})
		}
	}
	return out
}

func firstChildOfKind(node *tree_sitter.Node, kind string, source []byte) string {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		c := node.NamedChild(i)
		if c != nil && c.Kind() == kind {
			return parser.NodeText(c, source)
		}
	}
	return ""
}

// parsePythonCalls walks a function body and flattens Name(...) and
// obj.attr(...) call expressions to dotted strings, in source order.
func parsePythonCalls(body *tree_sitter.Node, source []byte) []Call {
	var calls []Call
	parser.Walk(body, func(node *tree_sitter.Node) bool {
		if node.Kind() != "call" {
			return true
		}
		fn := node.ChildByFieldName("function")
		if fn == nil {
			return true
		}
		switch fn.Kind() {
		case "identifier", "attribute":
			calls = append(calls, Call{Name: parser.NodeText(fn, source), Line: line(node.StartPosition())})
		}
		return true
	})
	return calls
}

func parsePythonImport(node *tree_sitter.Node, source []byte) []Import {
	var out []Import
	ln := line(node.StartPosition())

	if node.Kind() == "import_statement" {
		for i := uint(0); i < node.NamedChildCount(); i++ {
			c := node.NamedChild(i)
			if c == nil {
				continue
			}
			switch c.Kind() {
			case "dotted_name":
				mod := parser.NodeText(c, source)
				out = append(out, Import{ModulePath: mod, ImportedName: mod, Line: ln})
			case "aliased_import":
				name := c.ChildByFieldName("name")
				alias := c.ChildByFieldName("alias")
				if name == nil {
					continue
				}
				mod := parser.NodeText(name, source)
				imported := mod
				if alias != nil {
					imported = parser.NodeText(alias, source)
				}
				out = append(out, Import{ModulePath: mod, ImportedName: imported, Line: ln})
			}
		}
		return out
	}

	// import_from_statement
	module := ""
	if m := node.ChildByFieldName("module_name"); m != nil {
		module = parser.NodeText(m, source)
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		c := node.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "dotted_name":
			name := parser.NodeText(c, source)
			if name == module {
				continue // this is the module_name child itself
			}
			out = append(out, Import{ModulePath: module + "." + name, ImportedName: name, Line: ln})
		case "aliased_import":
			nameNode := c.ChildByFieldName("name")
			aliasNode := c.ChildByFieldName("alias")
			if nameNode == nil {
				continue
			}
			name := parser.NodeText(nameNode, source)
			imported := name
			if aliasNode != nil {
				imported = parser.NodeText(aliasNode, source)
			}
			out = append(out, Import{ModulePath: module + "." + name, ImportedName: imported, Line: ln})
		case "wildcard_import":
			out = append(out, Import{ModulePath: module, ImportedName: "*", Line: ln})
		}
	}
	return out
}

// parsePythonConstant recognizes a top-level `NAME = value` assignment
// where NAME is written in ALL-CAPS.
func parsePythonConstant(node *tree_sitter.Node, source []byte) (string, bool) {
	if node.NamedChildCount() == 0 {
		return "", false
	}
	assign := node.NamedChild(0)
	if assign == nil || assign.Kind() != "assignment" {
		return "", false
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return "", false
	}
	name := parser.NodeText(left, source)
	if !isAllCaps(name) {
		return "", false
	}
	return name, true
}

func isAllCaps(name string) bool {
	if name == "" {
		return false
	}
	hasLetter := false
	for _, r := range name {
		switch {
		case unicode.IsLower(r):
			return false
		case unicode.IsUpper(r):
			hasLetter = true
		case r == '_' || unicode.IsDigit(r):
			// allowed
		default:
			return false
		}
	}
	return hasLetter
}

// pythonDocstring extracts a PEP 257 docstring: a string literal that is
// the first statement in a class/function body.
func pythonDocstring(node *tree_sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode == nil || strNode.Kind() != "string" {
		return ""
	}
	return cleanPythonDocstring(parser.NodeText(strNode, source))
}

// cleanPythonDocstring strips the triple-quote delimiters and dedents
// continuation lines.
func cleanPythonDocstring(s string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) && len(s) >= 2*len(delim) {
			s = s[len(delim) : len(s)-len(delim)]
			break
		}
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 1 {
		return strings.TrimSpace(s)
	}
	minIndent := -1
	for _, l := range lines[1:] {
		trimmed := strings.TrimLeft(l, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(l) - len(trimmed)
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= minIndent {
				lines[i] = lines[i][minIndent:]
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func fieldText(node *tree_sitter.Node, field string, source []byte) string {
	f := node.ChildByFieldName(field)
	if f == nil {
		return ""
	}
	return parser.NodeText(f, source)
}

func line(p tree_sitter.Point) int {
	return int(p.Row) + 1
}

// sortedStrings returns a sorted copy of in, leaving in unchanged.
func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
