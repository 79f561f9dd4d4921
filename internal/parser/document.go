package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseErrorCode is the machine readable reason a document was rejected.
type ParseErrorCode string

const (
	CodeSyntax        ParseErrorCode = "syntax"
	CodeUnexpectedEOF ParseErrorCode = "unexpected_eof"
	CodeNoRootElement ParseErrorCode = "no_root_element"
)

// ParseError reports a response that is not a usable document.
type ParseError struct {
	Code ParseErrorCode
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d: %v", e.Code, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// node is a minimal element tree: tag name, concatenated text and child elements.
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) value() string {
	return n.text.String()
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseDocument decodes raw into an element tree and returns its document element.
// The decoder runs in non-strict mode so mismatched closing tags and HTML entities
// are tolerated; truncated or garbled input still fails.
func parseDocument(raw string) (*node, *ParseError) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, &ParseError{Code: CodeNoRootElement, Err: errors.New("document has no element")}
	}
	return root, nil
}

func classify(err error) *ParseError {
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		code := CodeSyntax
		if strings.Contains(syntaxErr.Msg, "unexpected EOF") {
			code = CodeUnexpectedEOF
		}
		return &ParseError{Code: code, Line: syntaxErr.Line, Err: err}
	}
	return &ParseError{Code: CodeSyntax, Err: err}
}

// container picks the element holding the rows: a direct child of the document
// element carrying the expected tag, or the document element itself.
func container(root *node, tag string) *node {
	if root.name == tag {
		return root
	}
	if c := root.child(tag); c != nil {
		return c
	}
	return root
}
