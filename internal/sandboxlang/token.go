package sandboxlang

import "strconv"

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tNumber
	tString
	tTemplate
	tPunct
	tKeyword
)

type token struct {
	kind tokenKind
	text string
	num  float64
	// parts/exprs populated only for tTemplate tokens: alternating
	// literal text chunks and embedded expression source strings,
	// literal chunks always one more than expr chunks.
	templateParts []string
	templateExprs []string
	pos           int
	line          int
}

var keywords = map[string]bool{
	"async": true, "await": true, "function": true, "return": true,
	"let": true, "const": true, "var": true, "if": true, "else": true,
	"for": true, "of": true, "while": true, "true": true, "false": true,
	"null": true, "undefined": true, "new": true, "typeof": true,
	"try": true, "catch": true, "finally": true, "throw": true,
	"break": true, "continue": true, "in": true,
}

type lexer struct {
	src  []rune
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1}
}

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() rune {
	r := l.peekRune()
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (l *lexer) skipWhitespaceAndComments() {
	for {
		r := l.peekRune()
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			l.advance()
			continue
		}
		if r == '/' && l.peekAt(1) == '/' {
			for l.peekRune() != '\n' && l.peekRune() != 0 {
				l.advance()
			}
			continue
		}
		if r == '/' && l.peekAt(1) == '*' {
			l.advance()
			l.advance()
			for !(l.peekRune() == '*' && l.peekAt(1) == '/') && l.peekRune() != 0 {
				l.advance()
			}
			l.advance()
			l.advance()
			continue
		}
		break
	}
}

// next returns the next token in the stream.
func (l *lexer) next() (token, error) {
	l.skipWhitespaceAndComments()
	startPos := l.pos
	startLine := l.line
	r := l.peekRune()
	if r == 0 {
		return token{kind: tEOF, pos: startPos, line: startLine}, nil
	}

	if isIdentStart(r) {
		start := l.pos
		for isIdentPart(l.peekRune()) {
			l.advance()
		}
		text := string(l.src[start:l.pos])
		kind := tIdent
		if keywords[text] {
			kind = tKeyword
		}
		return token{kind: kind, text: text, pos: startPos, line: startLine}, nil
	}

	if isDigit(r) || (r == '.' && isDigit(l.peekAt(1))) {
		start := l.pos
		for isDigit(l.peekRune()) {
			l.advance()
		}
		if l.peekRune() == '.' {
			l.advance()
			for isDigit(l.peekRune()) {
				l.advance()
			}
		}
		if l.peekRune() == 'e' || l.peekRune() == 'E' {
			l.advance()
			if l.peekRune() == '+' || l.peekRune() == '-' {
				l.advance()
			}
			for isDigit(l.peekRune()) {
				l.advance()
			}
		}
		text := string(l.src[start:l.pos])
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, newSyntaxError("invalid number literal "+text, startLine)
		}
		return token{kind: tNumber, text: text, num: f, pos: startPos, line: startLine}, nil
	}

	if r == '"' || r == '\'' {
		quote := r
		l.advance()
		var sb []rune
		for l.peekRune() != quote {
			if l.peekRune() == 0 {
				return token{}, newSyntaxError("unterminated string literal", startLine)
			}
			c := l.advance()
			if c == '\\' {
				sb = append(sb, unescape(l.advance()))
				continue
			}
			sb = append(sb, c)
		}
		l.advance()
		return token{kind: tString, text: string(sb), pos: startPos, line: startLine}, nil
	}

	if r == '`' {
		return l.lexTemplate(startPos, startLine)
	}

	// Punctuation, longest-match first.
	three := string(l.peekRune()) + string(l.peekAt(1)) + string(l.peekAt(2))
	for _, p := range []string{"===", "!==", "**=", "...", "&&=", "||="} {
		if three == p {
			l.advance()
			l.advance()
			l.advance()
			return token{kind: tPunct, text: p, pos: startPos, line: startLine}, nil
		}
	}
	two := string(l.peekRune()) + string(l.peekAt(1))
	for _, p := range []string{"=>", "==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=", "??", "?."} {
		if two == p {
			l.advance()
			l.advance()
			return token{kind: tPunct, text: p, pos: startPos, line: startLine}, nil
		}
	}
	l.advance()
	return token{kind: tPunct, text: string(r), pos: startPos, line: startLine}, nil
}

// lexTemplate reads a template literal starting at the backtick, splitting
// it into literal chunks and ${...} expression source snippets.
func (l *lexer) lexTemplate(startPos, startLine int) (token, error) {
	l.advance() // consume opening `
	var parts []string
	var exprs []string
	var cur []rune
	for {
		r := l.peekRune()
		if r == 0 {
			return token{}, newSyntaxError("unterminated template literal", startLine)
		}
		if r == '`' {
			l.advance()
			break
		}
		if r == '\\' {
			l.advance()
			cur = append(cur, unescape(l.advance()))
			continue
		}
		if r == '$' && l.peekAt(1) == '{' {
			l.advance()
			l.advance()
			depth := 1
			var exprSrc []rune
			for depth > 0 {
				c := l.peekRune()
				if c == 0 {
					return token{}, newSyntaxError("unterminated template expression", startLine)
				}
				if c == '{' {
					depth++
				}
				if c == '}' {
					depth--
					if depth == 0 {
						l.advance()
						break
					}
				}
				exprSrc = append(exprSrc, c)
				l.advance()
			}
			parts = append(parts, string(cur))
			cur = nil
			exprs = append(exprs, string(exprSrc))
			continue
		}
		cur = append(cur, l.advance())
	}
	parts = append(parts, string(cur))
	return token{kind: tTemplate, templateParts: parts, templateExprs: exprs, pos: startPos, line: startLine}, nil
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}
