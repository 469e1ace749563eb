package cql

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type DeclarationKind int

const (
	ValueSetKind DeclarationKind = iota
	CodeSystemKind
)

func (k DeclarationKind) String() string {
	switch k {
	case ValueSetKind:
		return "valueset"
	case CodeSystemKind:
		return "codesystem"
	default:
		return "unknown"
	}
}

// Declaration is one recognised `valueset` or `codesystem` statement.
// Value is the raw single-quoted string of the statement.
type Declaration struct {
	Kind  DeclarationKind
	Name  string
	Value string
}

type tokenKind int

const (
	tokWord   tokenKind = iota // bare identifier or keyword
	tokIdent                   // "double" or `back` quoted identifier
	tokString                  // 'single' quoted string
	tokPunct                   // any other single character
)

type token struct {
	kind tokenKind
	text string
}

// Scan returns the declarations found in text, in source order.
//
// Matching rules:
//   - whitespace, // line comments and /* block */ comments separate tokens
//   - a declaration is: keyword, name, ':', single quoted string
//   - the keyword is `valueset` or `codesystem`, matched case-insensitively,
//     and must be a bare word
//   - the name is a double or back quoted identifier, or a bare word
//   - access modifiers before the keyword and anything after the string
//     (version '...', codesystems { ... }) do not take part in matching
//   - any token sequence that does not match is skipped
//   - a quoted token ends on its own line; when the closing quote is missing
//     the tokens of that line are dropped and scanning resumes on the next one
func Scan(text string) []Declaration {
	toks := tokenize(text)

	var decls []Declaration
	for i := 0; i < len(toks); i++ {
		kind, ok := keyword(toks[i])
		if !ok || i+3 >= len(toks) {
			continue
		}
		name, colon, value := toks[i+1], toks[i+2], toks[i+3]
		if name.kind != tokIdent && name.kind != tokWord {
			continue
		}
		if colon.kind != tokPunct || colon.text != ":" || value.kind != tokString {
			continue
		}
		decls = append(decls, Declaration{Kind: kind, Name: name.text, Value: value.text})
		i += 3
	}
	return decls
}

func keyword(t token) (DeclarationKind, bool) {
	if t.kind != tokWord {
		return 0, false
	}
	switch strings.ToLower(t.text) {
	case "valueset":
		return ValueSetKind, true
	case "codesystem":
		return CodeSystemKind, true
	}
	return 0, false
}

func tokenize(text string) []token {
	var toks []token
	pos := 0
	lineStart := 0 // index of the first token on the current line
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])

		switch {
		case unicode.IsSpace(r):
			if r == '\n' {
				lineStart = len(toks)
			}
			pos += size

		case strings.HasPrefix(text[pos:], "//"):
			end := strings.IndexByte(text[pos:], '\n')
			if end < 0 {
				return toks
			}
			pos += end + 1
			lineStart = len(toks)

		case strings.HasPrefix(text[pos:], "/*"):
			end := strings.Index(text[pos+2:], "*/")
			if end < 0 {
				return toks
			}
			if strings.Contains(text[pos+2:pos+2+end], "\n") {
				lineStart = len(toks)
			}
			pos += end + 4

		case r == '"' || r == '`' || r == '\'':
			body, n, ok := readQuoted(text[pos:], byte(r))
			if !ok {
				toks = toks[:lineStart]
				end := strings.IndexByte(text[pos:], '\n')
				if end < 0 {
					return toks
				}
				pos += end + 1
				continue
			}
			kind := tokIdent
			if r == '\'' {
				kind = tokString
			}
			toks = append(toks, token{kind: kind, text: body})
			pos += n

		case isWordRune(r):
			start := pos
			for pos < len(text) {
				r, size = utf8.DecodeRuneInString(text[pos:])
				if !isWordRune(r) {
					break
				}
				pos += size
			}
			toks = append(toks, token{kind: tokWord, text: text[start:pos]})

		default:
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			pos += size
		}
	}
	return toks
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// readQuoted reads a quoted token starting at s[0] == quote and returns its
// unescaped body and the number of bytes consumed. It fails when the line
// or the input ends before the closing quote.
func readQuoted(s string, quote byte) (string, int, bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), i + 1, true
		case c == '\n' || c == '\r':
			return "", 0, false
		case c == '\\' && i+1 < len(s) && s[i+1] != '\n' && s[i+1] != '\r':
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				if i+4 < len(s) {
					if v, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
						b.WriteRune(rune(v))
						i += 4
						continue
					}
				}
				b.WriteByte('u')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}
