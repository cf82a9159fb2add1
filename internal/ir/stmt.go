package ir

// Statement is a sealed interface over the reversible statement set.
// Only Assign, If, Loop, Swap, Call, Local, and Delocal implement it.
//
// Statements are immutable AST nodes. Identity is structural: a
// statement is addressed by its path in the owning procedure's body
// (see StmtPath in the engine's errors).
type Statement interface {
	stmt() // Sealed - only these types implement it.
}

// Assign mutates a single slot in place: target op= rhs.
//
// Invariant: Target never occurs inside Rhs. The static validator
// rejects syntactic self-reference; the engine additionally rejects
// dynamic aliasing by slot identity on every execution. Both are load
// bearing: the backward pass re-evaluates Rhs in the already-mutated
// environment and relies on the value being identical.
type Assign struct {
	Target string `json:"target"`
	Op     Op     `json:"op"`
	Rhs    Expr   `json:"rhs"`
}

func (Assign) stmt() {}

// If is the reversible conditional: a forward guard plus a post-branch
// assertion. Forward execution selects the branch by Guard and then
// requires Assert to equal the branch taken. Backward execution selects
// the branch by Assert alone, inverts it, and then requires Guard to
// equal the branch taken. The assertion is what lets the backward pass
// replay the branch without stored history.
type If struct {
	Guard  Expr        `json:"guard"`
	Then   []Statement `json:"then"`
	Else   []Statement `json:"else,omitempty"`
	Assert Expr        `json:"assert"`
}

func (If) stmt() {}

// Loop is the reversible loop. Forward: From must hold on entry, the
// body runs until Until holds, and From must be false after every
// iteration but the implicit zeroth. Backward: the roles of From and
// Until swap and the body runs inverted.
type Loop struct {
	From  Expr        `json:"from"`
	Body  []Statement `json:"body"`
	Until Expr        `json:"until"`
}

func (Loop) stmt() {}

// Swap exchanges the values of two distinct slots. Self-inverse.
type Swap struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (Swap) stmt() {}

// Call dispatches to another registered reversible procedure, passing
// the named slots as exclusive references. Inverting a forward call is
// exactly a backward call of the same procedure.
type Call struct {
	Callee string   `json:"callee"`
	Args   []string `json:"args"`
}

func (Call) stmt() {}

// Local introduces a scoped temporary initialised to Init. Every Local
// must be consumed by a Delocal of the same name in the same block; the
// static validator enforces the balance.
type Local struct {
	Name string `json:"name"`
	Init Expr   `json:"init"`
}

func (Local) stmt() {}

// Delocal consumes a temporary introduced by Local. Forward execution
// checks that the slot equals Value and then deallocates it; backward
// execution re-allocates the slot from Value. The check is what makes
// deallocation information-preserving.
type Delocal struct {
	Name  string `json:"name"`
	Value Expr   `json:"value"`
}

func (Delocal) stmt() {}

// Procedure is a named reversible routine. Params are exclusive mutable
// bindings in declaration order. Immutable once registered.
type Procedure struct {
	Name   string      `json:"name"`
	Params []string    `json:"params"`
	Body   []Statement `json:"body"`
}
