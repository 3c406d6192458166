package rpn

import (
	"strconv"
	"strings"

	"github.com/rakunlabs/splot/internal/splotval"
)

// node is one compiled instruction. A compiled Expr is a flat list of
// nodes for straight-line code, with structured control-flow nodes
// (ifNode, caseNode, doNode) nesting their own bodies — this avoids manual
// jump-target bookkeeping while still forbidding unbounded backward jumps.
type node interface {
	exec(vm *VM) error
}

// Expr is a compiled, reusable, stateless RPN program.
type Expr struct {
	prog []node
}

// Compile parses src into a reusable Expr. Compilation is pure: it performs
// no evaluation and has no side effects.
func Compile(src string) (*Expr, error) {
	toks := tokenize(src)
	p := &parser{toks: toks}
	body, term, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if term != "" {
		return nil, splotval.NewError(splotval.ErrRPNSyntaxError, "unexpected terminator %q", term)
	}
	return &Expr{prog: body}, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (string, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// parseBlock parses instructions until end of input or one of the
// structural terminator keywords (ELSE, ENDIF, OF, ENDOF, ENDCASE, LOOP),
// returning which terminator stopped it ("" at end of input).
func (p *parser) parseBlock() ([]node, string, error) {
	var out []node
	for {
		tok, ok := p.peek()
		if !ok {
			return out, "", nil
		}
		switch tok {
		case "ELSE", "ENDIF", "OF", "ENDOF", "ENDCASE", "LOOP":
			return out, tok, nil
		case "IF":
			p.next()
			n, err := p.parseIf()
			if err != nil {
				return nil, "", err
			}
			out = append(out, n)
		case "CASE":
			p.next()
			n, err := p.parseCase()
			if err != nil {
				return nil, "", err
			}
			out = append(out, n)
		case "DO":
			p.next()
			n, err := p.parseDo()
			if err != nil {
				return nil, "", err
			}
			out = append(out, n)
		default:
			p.next()
			n, err := compileToken(tok)
			if err != nil {
				return nil, "", err
			}
			out = append(out, n)
		}
	}
}

func (p *parser) parseIf() (node, error) {
	thenBody, term, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBody []node
	if term == "ELSE" {
		p.next()
		elseBody, term, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	if term != "ENDIF" {
		return nil, splotval.NewError(splotval.ErrRPNSyntaxError, "IF without matching ENDIF")
	}
	p.next()
	return &ifNode{thenBody: thenBody, elseBody: elseBody}, nil
}

// parseCase parses the Forth-style "CASE v1 OF ... ENDOF v2 OF ... ENDOF ... ENDCASE" form.
func (p *parser) parseCase() (node, error) {
	var branches []caseBranch
	for {
		tok, ok := p.peek()
		if ok && tok == "ENDCASE" {
			p.next()
			break
		}
		valueBody, term, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if term != "OF" {
			return nil, splotval.NewError(splotval.ErrRPNSyntaxError, "CASE branch without OF")
		}
		p.next()
		body, term2, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if term2 != "ENDOF" {
			return nil, splotval.NewError(splotval.ErrRPNSyntaxError, "CASE branch without ENDOF")
		}
		p.next()
		branches = append(branches, caseBranch{valueProg: valueBody, body: body})
	}
	return &caseNode{branches: branches}, nil
}

func (p *parser) parseDo() (node, error) {
	body, term, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if term != "LOOP" {
		return nil, splotval.NewError(splotval.ErrRPNSyntaxError, "DO without matching LOOP")
	}
	p.next()
	return &doNode{body: body}, nil
}

// compileToken compiles a single leaf token: a literal, constant,
// operator, or variable reference.
func compileToken(tok string) (node, error) {
	if n, ok, err := compileLiteral(tok); ok || err != nil {
		return n, err
	}
	if n, ok := compileOperator(tok); ok {
		return n, nil
	}
	// Everything else is a variable identifier, looked up at eval time.
	return &varNode{name: tok}, nil
}

func compileLiteral(tok string) (node, bool, error) {
	switch {
	case strings.HasPrefix(tok, ":"):
		return &pushNode{v: splotval.Str(tok[1:])}, true, nil
	case tok == "{}":
		return &pushNode{v: splotval.Map(nil)}, true, nil
	case strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]"):
		n, err := strconv.Atoi(tok[1 : len(tok)-1])
		if err != nil {
			return nil, false, splotval.NewError(splotval.ErrRPNSyntaxError, "bad array arity %q", tok)
		}
		return &arrayNode{n: n}, true, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		if i, ierr := strconv.ParseInt(tok, 10, 64); ierr == nil && !strings.ContainsAny(tok, ".eE") {
			return &pushNode{v: splotval.Int(i)}, true, nil
		}
		return &pushNode{v: splotval.Real(f)}, true, nil
	}
	return nil, false, nil
}

type pushNode struct{ v splotval.Value }

func (n *pushNode) exec(vm *VM) error { return vm.push(n.v) }

type arrayNode struct{ n int }

func (n *arrayNode) exec(vm *VM) error {
	elems, err := vm.popN(n.n)
	if err != nil {
		return err
	}
	return vm.push(splotval.Array(elems))
}

type varNode struct{ name string }

func (n *varNode) exec(vm *VM) error {
	// rtc.wss / rtc.utc are flags: they push nothing but affect every
	// subsequent rtc.* lookup in this evaluation, per spec §6.
	switch n.name {
	case "rtc.wss":
		vm.rtc.wss = true
		return nil
	case "rtc.utc":
		vm.rtc.utc = true
		return nil
	}
	v, err := vm.lookupVar(n.name)
	if err != nil {
		return err
	}
	return vm.push(v)
}

type ifNode struct {
	thenBody []node
	elseBody []node
}

func (n *ifNode) exec(vm *VM) error {
	cond, err := vm.pop()
	if err != nil {
		return err
	}
	body := n.elseBody
	if cond.Truthy() {
		body = n.thenBody
	}
	return vm.execAll(body)
}

type caseBranch struct {
	valueProg []node
	body      []node
}

type caseNode struct{ branches []caseBranch }

func (n *caseNode) exec(vm *VM) error {
	testVal, err := vm.pop()
	if err != nil {
		return err
	}
	for _, b := range n.branches {
		if err := vm.execAll(b.valueProg); err != nil {
			return err
		}
		branchVal, err := vm.pop()
		if err != nil {
			return err
		}
		if branchVal.Equal(testVal) {
			return vm.execAll(b.body)
		}
	}
	return nil
}

// maxLoopIterations bounds DO/LOOP so a malformed limit/start pair cannot
// hang the evaluator; this is well above any realistic schedule/transform
// use of the construct.
const maxLoopIterations = 1_000_000

type doNode struct{ body []node }

func (n *doNode) exec(vm *VM) error {
	startVal, err := vm.pop()
	if err != nil {
		return err
	}
	limitVal, err := vm.pop()
	if err != nil {
		return err
	}
	start, err := toInt(startVal)
	if err != nil {
		return err
	}
	limit, err := toInt(limitVal)
	if err != nil {
		return err
	}
	if limit-start > maxLoopIterations {
		return splotval.NewError(splotval.ErrRPNSyntaxError, "DO/LOOP range too large")
	}
	for i := start; i < limit; i++ {
		vm.pushLoopVar(i)
		err := vm.execAll(n.body)
		vm.popLoopVar()
		if err != nil {
			return err
		}
	}
	return nil
}

func toInt(v splotval.Value) (int64, error) {
	c, err := splotval.Coerce(v, splotval.KindInt)
	if err != nil {
		return 0, err
	}
	i, _ := c.AsInt()
	return i, nil
}
