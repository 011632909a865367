// Package sqltoken splits SQL text into the coarse token classes the UI
// editor uses for highlighting.
package sqltoken

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Type uint8

const (
	Identifier Type = iota
	NumericConstant
	StringConstant
	Operator
	Keyword
	Comment
)

func (t Type) String() string {
	switch t {
	case Identifier:
		return "IDENTIFIER"
	case NumericConstant:
		return "NUMERIC_CONSTANT"
	case StringConstant:
		return "STRING_CONSTANT"
	case Operator:
		return "OPERATOR"
	case Keyword:
		return "KEYWORD"
	case Comment:
		return "COMMENT"
	}
	return "UNKNOWN"
}

// Token marks where a token starts; it runs until the next token.
type Token struct {
	Offset int
	Type   Type
}

const operatorChars = "<>=!|&+-*/%^~@#?"

// Tokenize scans sql and returns tokens in order. Unterminated strings and
// comments run to the end of the input.
func Tokenize(sql string) []Token {
	var tokens []Token
	i := 0
	for i < len(sql) {
		r, size := utf8.DecodeRuneInString(sql[i:])
		start := i
		switch {
		case unicode.IsSpace(r):
			i += size
			continue
		case strings.HasPrefix(sql[i:], "--"):
			i = indexFrom(sql, i, "\n", len(sql))
			tokens = append(tokens, Token{start, Comment})
		case strings.HasPrefix(sql[i:], "/*"):
			i = indexFrom(sql, i+2, "*/", len(sql)-2) + 2
			tokens = append(tokens, Token{start, Comment})
		case r == '\'':
			i = scanQuoted(sql, i, '\'')
			tokens = append(tokens, Token{start, StringConstant})
		case r == '"':
			i = scanQuoted(sql, i, '"')
			tokens = append(tokens, Token{start, Identifier})
		case isDigit(r) || (r == '.' && i+1 < len(sql) && isDigit(rune(sql[i+1]))):
			i = scanNumber(sql, i)
			tokens = append(tokens, Token{start, NumericConstant})
		case r == '_' || unicode.IsLetter(r):
			for i < len(sql) {
				r, size := utf8.DecodeRuneInString(sql[i:])
				if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			typ := Identifier
			if IsKeyword(sql[start:i]) {
				typ = Keyword
			}
			tokens = append(tokens, Token{start, typ})
		case strings.ContainsRune(operatorChars, r):
			for i < len(sql) && strings.IndexByte(operatorChars, sql[i]) >= 0 {
				if strings.HasPrefix(sql[i:], "--") || strings.HasPrefix(sql[i:], "/*") {
					break
				}
				i++
			}
			tokens = append(tokens, Token{start, Operator})
		default:
			i += size
			tokens = append(tokens, Token{start, Operator})
		}
	}
	return tokens
}

// indexFrom returns the index of sep in s at or after from, or def when it
// does not occur.
func indexFrom(s string, from int, sep string, def int) int {
	if n := strings.Index(s[from:], sep); n >= 0 {
		return from + n
	}
	return def
}

// scanQuoted returns the index just past the closing quote. A doubled quote
// is an escaped quote character.
func scanQuoted(s string, i int, q byte) int {
	i++
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}

func scanNumber(s string, i int) int {
	if strings.HasPrefix(s[i:], "0x") || strings.HasPrefix(s[i:], "0X") {
		i += 2
		for i < len(s) && isHex(s[i]) {
			i++
		}
		return i
	}
	for i < len(s) && (isDigit(rune(s[i])) || s[i] == '_') {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && (isDigit(rune(s[i])) || s[i] == '_') {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(rune(s[j])) {
			i = j
			for i < len(s) && isDigit(rune(s[i])) {
				i++
			}
		}
	}
	return i
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHex(b byte) bool {
	return isDigit(rune(b)) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
