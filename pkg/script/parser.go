package script

import (
	"fmt"
	"strconv"
)

// Parser builds a Program from tokens. Parse errors carry the source
// line; they are classified as the syntax failure kind by the executor.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
}

// NewParser creates a parser over the source text.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.next()
	p.next()
	return p
}

// Parse consumes the whole source and returns the program.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{}
	for p.cur.Type != TokenEOF {
		if p.cur.Type == TokenNewline {
			p.next()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		if p.cur.Type != TokenEOF && p.cur.Type != TokenNewline {
			return nil, p.errorf("unexpected %q after statement", p.cur.Literal)
		}
	}
	return prog, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	line := p.cur.Line
	if p.cur.Type == TokenIdent && p.peek.Type == TokenAssign {
		name := p.cur.Literal
		p.next() // ident
		p.next() // =
		expr, err := p.parseExpr()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Target: name, Expr: expr, Line: line}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return Statement{}, err
	}
	return Statement{Expr: expr, Line: line}, nil
}

func (p *Parser) parseExpr() (Node, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenOr {
		line := p.cur.Line
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenOr, Left: left, Right: right, Line: line}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenAnd {
		line := p.cur.Line
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenAnd, Left: left, Right: right, Line: line}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.cur.Type == TokenNot {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenNot, Right: right}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for isComparisonOp(p.cur.Type) {
		op, line := p.cur.Type, p.cur.Line
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenPlus || p.cur.Type == TokenMinus {
		op, line := p.cur.Type, p.cur.Line
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left, nil
}

func (p *Parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash || p.cur.Type == TokenPercent {
		op, line := p.cur.Type, p.cur.Line
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.cur.Type == TokenMinus {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenMinus, Right: right}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenLBracket {
		line := p.cur.Line
		p.next()
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRBracket {
			return nil, p.errorf("expected ] after index, got %q", p.cur.Literal)
		}
		p.next()
		expr = &Index{Target: expr, Key: key, Line: line}
	}
	return expr, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	switch p.cur.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", p.cur.Literal)
		}
		p.next()
		return &NumberLit{Value: f}, nil

	case TokenString:
		lit := &StringLit{Value: p.cur.Literal}
		p.next()
		return lit, nil

	case TokenTrue, TokenFalse:
		lit := &BoolLit{Value: p.cur.Type == TokenTrue}
		p.next()
		return lit, nil

	case TokenNull:
		p.next()
		return &NullLit{}, nil

	case TokenLBracket:
		return p.parseList()

	case TokenLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRParen {
			return nil, p.errorf("expected ), got %q", p.cur.Literal)
		}
		p.next()
		return expr, nil

	case TokenIdent:
		name, line := p.cur.Literal, p.cur.Line
		p.next()
		if p.cur.Type == TokenLParen {
			return p.parseCall(name, line)
		}
		return &Ident{Name: name, Line: line}, nil

	case TokenIllegal:
		return nil, p.errorf("illegal token %q", p.cur.Literal)

	default:
		return nil, p.errorf("unexpected %q", p.cur.Literal)
	}
}

func (p *Parser) parseCall(name string, line int) (Node, error) {
	call := &Call{Name: name, Line: line}
	p.next() // (
	p.skipNewlines()
	if p.cur.Type == TokenRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		p.skipNewlines()
		if p.cur.Type == TokenComma {
			p.next()
			p.skipNewlines()
			continue
		}
		break
	}
	if p.cur.Type != TokenRParen {
		return nil, p.errorf("expected ) in call to %s, got %q", name, p.cur.Literal)
	}
	p.next()
	return call, nil
}

func (p *Parser) parseList() (Node, error) {
	list := &ListLit{}
	p.next() // [
	p.skipNewlines()
	if p.cur.Type == TokenRBracket {
		p.next()
		return list, nil
	}
	for {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		p.skipNewlines()
		if p.cur.Type == TokenComma {
			p.next()
			p.skipNewlines()
			continue
		}
		break
	}
	if p.cur.Type != TokenRBracket {
		return nil, p.errorf("expected ] in list, got %q", p.cur.Literal)
	}
	p.next()
	return list, nil
}

// skipNewlines allows calls and lists to span lines.
func (p *Parser) skipNewlines() {
	for p.cur.Type == TokenNewline {
		p.next()
	}
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.cur.Line, fmt.Sprintf(format, args...))
}

func isComparisonOp(t TokenType) bool {
	switch t {
	case TokenEq, TokenNotEq, TokenLt, TokenLte, TokenGt, TokenGte:
		return true
	default:
		return false
	}
}
