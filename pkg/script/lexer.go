package script

import "fmt"

// TokenType identifies a lexical token of the script language.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenNewline

	// Identifiers and literals
	TokenIdent
	TokenString
	TokenNumber

	// Keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse
	TokenNull

	// Operators and punctuation
	TokenAssign   // =
	TokenEq       // ==
	TokenNotEq    // !=
	TokenLt       // <
	TokenLte      // <=
	TokenGt       // >
	TokenGte      // >=
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenPercent  // %
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
)

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
}

// Token is one lexical token with its source line for error reporting.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
}

// Lexer splits script source into tokens. Newlines are significant
// (statement separators); '#' starts a comment through end of line.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
	line    int
}

// NewLexer creates a lexer over the source text.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpace()

	tok := Token{Line: l.line}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
	case '\n', ';':
		tok.Type = TokenNewline
		tok.Literal = string(l.ch)
		if l.ch == '\n' {
			l.line++
		}
	case '=':
		if l.peek() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenEq, "=="
		} else {
			tok.Type, tok.Literal = TokenAssign, "="
		}
	case '!':
		if l.peek() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenNotEq, "!="
		} else {
			tok.Type, tok.Literal = TokenIllegal, "!"
		}
	case '<':
		if l.peek() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenLte, "<="
		} else {
			tok.Type, tok.Literal = TokenLt, "<"
		}
	case '>':
		if l.peek() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenGte, ">="
		} else {
			tok.Type, tok.Literal = TokenGt, ">"
		}
	case '+':
		tok.Type, tok.Literal = TokenPlus, "+"
	case '-':
		tok.Type, tok.Literal = TokenMinus, "-"
	case '*':
		tok.Type, tok.Literal = TokenStar, "*"
	case '/':
		tok.Type, tok.Literal = TokenSlash, "/"
	case '%':
		tok.Type, tok.Literal = TokenPercent, "%"
	case '(':
		tok.Type, tok.Literal = TokenLParen, "("
	case ')':
		tok.Type, tok.Literal = TokenRParen, ")"
	case '[':
		tok.Type, tok.Literal = TokenLBracket, "["
	case ']':
		tok.Type, tok.Literal = TokenRBracket, "]"
	case ',':
		tok.Type, tok.Literal = TokenComma, ","
	case '\'', '"':
		literal, err := l.readString(l.ch)
		if err != nil {
			tok.Type, tok.Literal = TokenIllegal, literal
		} else {
			tok.Type, tok.Literal = TokenString, literal
		}
		return tok
	default:
		switch {
		case isLetter(l.ch):
			tok.Literal = l.readIdent()
			if kw, ok := keywords[tok.Literal]; ok {
				tok.Type = kw
			} else {
				tok.Type = TokenIdent
			}
			return tok
		case isDigit(l.ch):
			tok.Type = TokenNumber
			tok.Literal = l.readNumber()
			return tok
		default:
			tok.Type, tok.Literal = TokenIllegal, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peek() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipSpace skips spaces, tabs, carriage returns and comments, but not
// newlines.
func (l *Lexer) skipSpace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readString reads a quoted literal with \", \', \\, \n and \t escapes.
func (l *Lexer) readString(quote byte) (string, error) {
	var out []byte
	l.readChar() // opening quote
	for l.ch != quote {
		if l.ch == 0 || l.ch == '\n' {
			return string(out), fmt.Errorf("unterminated string")
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, l.ch)
			}
			l.readChar()
			continue
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return string(out), nil
}

func isLetter(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
