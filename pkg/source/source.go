// Package source recovers Go source context for call sites.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// ErrNoFunction is returned when no function declaration spans the line.
var ErrNoFunction = errors.New("no enclosing function")

// Function is a function or method declaration. Lines are 1-based.
type Function struct {
	Name      string `json:"name"`
	Receiver  string `json:"receiver,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// EnclosingFunction returns the declaration in the Go file at path whose
// span contains line.
func EnclosingFunction(path string, line int) (*Function, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	fn, err := EnclosingFunctionSource(content, line)
	if err != nil {
		return nil, fmt.Errorf("%s:%d: %w", path, line, err)
	}
	return fn, nil
}

// EnclosingFunctionSource is EnclosingFunction over file content.
func EnclosingFunctionSource(content []byte, line int) (*Function, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	row := uint32(line - 1)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl == nil {
			continue
		}
		if decl.Type() != "function_declaration" && decl.Type() != "method_declaration" {
			continue
		}
		if decl.StartPoint().Row > row || decl.EndPoint().Row < row {
			continue
		}
		fn := &Function{
			Name:      nodeText(decl.ChildByFieldName("name"), content),
			StartLine: int(decl.StartPoint().Row) + 1,
			EndLine:   int(decl.EndPoint().Row) + 1,
			Text:      nodeText(decl, content),
		}
		if decl.Type() == "method_declaration" {
			fn.Receiver = receiverType(decl.ChildByFieldName("receiver"), content)
		}
		return fn, nil
	}
	return nil, ErrNoFunction
}

// receiverType returns the type text of a method receiver, such as "*File".
func receiverType(params *sitter.Node, content []byte) string {
	if params == nil {
		return ""
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p != nil && p.Type() == "parameter_declaration" {
			return nodeText(p.ChildByFieldName("type"), content)
		}
	}
	return ""
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(content)) || end > uint32(len(content)) {
		return ""
	}
	return string(content[start:end])
}
