// Package jsparse parses JavaScript and TypeScript component modules with
// tree-sitter and reports their top-level default exports.
package jsparse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Position is a 1-based source location.
type Position struct {
	Line   int
	Column int
}

// Module summarises a parsed source file.
type Module struct {
	// Path is the path the source was read from.
	Path string
	// DefaultExports lists every top-level `export default` statement.
	DefaultExports []Position
}

// SyntaxError reports the first malformed region of a source file.
type SyntaxError struct {
	Path string
	Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
}

// Parser parses component modules. The zero value is ready to use and safe
// for concurrent use; a tree-sitter parser is created per call.
type Parser struct{}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Parse parses src, choosing the grammar from the extension of path.
// JSX is accepted in .js and .jsx files.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*Module, error) {
	lang := languageFor(path)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(path, root, src)
	}

	mod := &Module{Path: path}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || child.Type() != "export_statement" {
			continue
		}

		if hasDefaultKeyword(child) {
			mod.DefaultExports = append(mod.DefaultExports, position(child.StartPoint()))
		}
	}

	return mod, nil
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// hasDefaultKeyword reports whether an export_statement carries the
// anonymous "default" token, i.e. `export default ...`.
func hasDefaultKeyword(stmt *sitter.Node) bool {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		c := stmt.Child(i)
		if c != nil && !c.IsNamed() && c.Type() == "default" {
			return true
		}
	}

	return false
}

func syntaxError(path string, root *sitter.Node, src []byte) *SyntaxError {
	bad := firstErrorNode(root)
	if bad == nil {
		return &SyntaxError{Path: path, Position: Position{Line: 1, Column: 1}, Msg: "syntax error"}
	}

	msg := "unexpected token"

	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Type())
	} else if text := snippet(bad, src); text != "" {
		msg = fmt.Sprintf("unexpected %q", text)
	}

	return &SyntaxError{Path: path, Position: position(bad.StartPoint()), Msg: msg}
}

// firstErrorNode returns the first ERROR or MISSING node in document order.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}

	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}

	if !n.HasError() {
		return nil
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}

	return nil
}

func snippet(n *sitter.Node, src []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if end <= start || int(end) > len(src) {
		return ""
	}

	text := strings.TrimSpace(string(src[start:end]))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}

	return truncate(text, maxSnippetRunes)
}

const maxSnippetRunes = 40

// truncate shortens text to at most n runes, marking the cut with an ellipsis.
func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	return string([]rune(text)[:n]) + "…"
}

func position(p sitter.Point) Position {
	return Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}
