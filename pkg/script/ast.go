package script

// Node is any AST node.
type Node interface {
	node()
}

// Program is a parsed script: an ordered list of statements.
type Program struct {
	Statements []Statement
}

// Statement is either an assignment or a bare expression.
type Statement struct {
	// Target is the assigned variable name; empty for expression
	// statements.
	Target string
	Expr   Node
	Line   int
}

// Literal expressions.
type (
	NumberLit struct{ Value float64 }
	StringLit struct{ Value string }
	BoolLit   struct{ Value bool }
	NullLit   struct{}
	ListLit   struct{ Items []Node }
)

// Ident references a bound variable.
type Ident struct {
	Name string
	Line int
}

// Call invokes a builtin from the registry.
type Call struct {
	Name string
	Args []Node
	Line int
}

// Unary is negation or logical not.
type Unary struct {
	Op    TokenType // TokenMinus or TokenNot
	Right Node
}

// Binary covers arithmetic, comparison, and/or.
type Binary struct {
	Op    TokenType
	Left  Node
	Right Node
	Line  int
}

// Index is list/map subscripting: x[i].
type Index struct {
	Target Node
	Key    Node
	Line   int
}

func (*NumberLit) node() {}
func (*StringLit) node() {}
func (*BoolLit) node()   {}
func (*NullLit) node()   {}
func (*ListLit) node()   {}
func (*Ident) node()     {}
func (*Call) node()      {}
func (*Unary) node()     {}
func (*Binary) node()    {}
func (*Index) node()     {}
