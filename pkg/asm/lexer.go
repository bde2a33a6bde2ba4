package asm

import (
	"strconv"
	"strings"
)

// token is one whitespace-separated field of a listing line.
type token struct {
	text   string
	column int // 1-indexed
	quoted bool
}

// fields splits a line into tokens. A ';' outside a string literal starts
// a comment that runs to the end of the line.
func fields(line string) ([]token, *Error) {
	var toks []token
	i := 0
	for i < len(line) {
		ch := line[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == ';':
			return toks, nil
		case ch == '"':
			lit, err := strconv.QuotedPrefix(line[i:])
			if err != nil {
				return nil, &Error{Column: i + 1, Message: "unterminated string literal"}
			}
			s, err := strconv.Unquote(lit)
			if err != nil {
				return nil, &Error{Column: i + 1, Message: "invalid string literal " + lit}
			}
			toks = append(toks, token{text: s, column: i + 1, quoted: true})
			i += len(lit)
		default:
			start := i
			for i < len(line) && !strings.ContainsRune(" \t\r;\"", rune(line[i])) {
				i++
			}
			toks = append(toks, token{text: line[start:i], column: start + 1})
		}
	}
	return toks, nil
}

// isNumber reports whether s starts like a decimal number.
func isNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// isLabel reports whether s is a valid label name.
func isLabel(s string) bool {
	if s == "" || isNumber(s) {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
