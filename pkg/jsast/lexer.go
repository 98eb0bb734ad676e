package jsast

import (
	"fmt"
	"strings"
)

type tokKind int

const (
	tEOF tokKind = iota
	tIdent
	tMember // @Type::member or @Type::member(descriptors)
	tNumber
	tString
	tPunct
)

type token struct {
	kind tokKind
	text string
	off  int
}

// SyntaxError reports a malformed fragment.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

// Longest operators first so that prefixes do not shadow them.
var puncts = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||",
	"(", ")", "{", "}", ",", ";", ".", "=", "+", "-", "*", "/", "%", "<", ">", "!",
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated comment"}
			}
			i += end + 4
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tIdent, text: src[i:j], off: i})
			i = j
		case c == '@':
			j, err := scanMember(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tMember, text: src[i:j], off: i})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tNumber, text: src[i:j], off: i})
			i = j
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tString, text: src[i : j+1], off: i})
			i = j + 1
		default:
			p := matchPunct(src[i:])
			if p == "" {
				return nil, &SyntaxError{Offset: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			toks = append(toks, token{kind: tPunct, text: p, off: i})
			i += len(p)
		}
	}
	return append(toks, token{kind: tEOF, off: len(src)}), nil
}

// scanMember scans "@pkg.Type::name" with an optional "(descriptors)"
// suffix and returns the end offset.
func scanMember(src string, start int) (int, error) {
	sep := strings.Index(src[start:], "::")
	if sep < 0 {
		return 0, &SyntaxError{Offset: start, Msg: "member reference without '::'"}
	}
	typ := src[start+1 : start+sep]
	if typ == "" {
		return 0, &SyntaxError{Offset: start, Msg: "member reference without type"}
	}
	for k := 0; k < len(typ); k++ {
		if !isIdentPart(typ[k]) && typ[k] != '.' {
			return 0, &SyntaxError{Offset: start, Msg: fmt.Sprintf("invalid type in member reference %q", typ)}
		}
	}
	j := start + sep + 2
	nameStart := j
	for j < len(src) && isIdentPart(src[j]) {
		j++
	}
	if j == nameStart {
		return 0, &SyntaxError{Offset: start, Msg: "member reference without member name"}
	}
	if j < len(src) && src[j] == '(' {
		end := strings.IndexByte(src[j:], ')')
		if end < 0 {
			return 0, &SyntaxError{Offset: j, Msg: "unterminated member signature"}
		}
		j += end + 1
	}
	return j, nil
}

func matchPunct(s string) string {
	for _, p := range puncts {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
