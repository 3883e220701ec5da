// Package expr implements the engine's expression language: path access
// (with wildcard projection and negative indices), literals, arithmetic,
// comparisons, logical short-circuit operators, and a fixed function set.
//
// It is evaluated against a read-only record of named values, typically
// { input, state, output, result }. Plain dotted field-chain path reads are
// served by github.com/tidwall/gjson (the same library the teacher's
// resolver used for field-path extraction); wildcard projection and
// negative indexing — which gjson's query syntax does not express the way
// this grammar needs — are walked by hand.
package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// absentType is the sentinel "no value" result, distinct from a literal
// JSON null, used for missing keys, out-of-bounds indices, and blocked
// prototype-style field names.
type absentType struct{}

// Absent is returned by path resolution when nothing is found.
var Absent = absentType{}

func isAbsent(v interface{}) bool {
	_, ok := v.(absentType)
	return ok
}

// forbiddenFields can never be resolved via path access, regardless of
// whether the underlying map happens to contain them.
var forbiddenFields = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
	"toString":    true,
}

// Expr is a parsed, reusable expression.
type Expr struct {
	root node
	src  string
}

// Parse compiles a source string into an Expr. The legacy "$." prefix is
// accepted and stripped wherever it appears immediately before a path.
func Parse(source string) (*Expr, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, fmt.Errorf("expr: lex %q: %w", source, err)
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", source, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("expr: parse %q: unexpected trailing input", source)
	}
	return &Expr{root: n, src: source}, nil
}

func (e *Expr) String() string { return e.src }

// MustParse panics on a parse error; useful for fixtures and tests.
func MustParse(source string) *Expr {
	e, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against ctx. The result is one of: nil,
// bool, float64, string, []interface{}, map[string]interface{}, or Absent.
func Eval(expression string, ctx map[string]interface{}) (interface{}, error) {
	e, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	return e.Eval(ctx)
}

// Eval evaluates a parsed expression against ctx.
func (e *Expr) Eval(ctx map[string]interface{}) (interface{}, error) {
	ec := &evalCtx{root: ctx}
	v, err := evalNode(e.root, ec)
	if err != nil {
		return nil, err
	}
	return v, nil
}

type evalCtx struct {
	root    map[string]interface{}
	jsonCache []byte
	jsonErr   error
	jsonDone  bool
}

func (c *evalCtx) json() ([]byte, error) {
	if !c.jsonDone {
		c.jsonCache, c.jsonErr = json.Marshal(c.root)
		c.jsonDone = true
	}
	return c.jsonCache, c.jsonErr
}

// ---- AST ----

type node interface{ isNode() }

type litNode struct{ v interface{} }
type pathNode struct{ segs []pathSeg }
type unaryNode struct {
	op string
	x  node
}
type binNode struct {
	op   string
	l, r node
}
type callNode struct {
	name string
	args []node
}

func (litNode) isNode()   {}
func (pathNode) isNode()  {}
func (unaryNode) isNode() {}
func (binNode) isNode()   {}
func (callNode) isNode()  {}

type segKind int

const (
	segField segKind = iota
	segIndex
	segWildcard
)

type pathSeg struct {
	kind  segKind
	field string
	index int
}

// ---- lexer ----

type tokKind int

const (
	tkEOF tokKind = iota
	tkIdent
	tkNumber
	tkString
	tkTrue
	tkFalse
	tkNull
	tkLParen
	tkRParen
	tkLBracket
	tkRBracket
	tkDot
	tkComma
	tkBang
	tkStar
	tkSlash
	tkPlus
	tkMinus
	tkLt
	tkGt
	tkLe
	tkGe
	tkEqEq
	tkNotEq
	tkEqEqEq
	tkNotEqEq
	tkAndAnd
	tkOrOr
)

type token struct {
	kind tokKind
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	r := []rune(src)
	i, n := 0, len(r)
	for i < n {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '$' && i+1 < n && r[i+1] == '.':
			i += 2 // legacy "$." prefix, stripped
		case c == '(':
			toks = append(toks, token{tkLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tkRParen, ")"})
			i++
		case c == '[':
			toks = append(toks, token{tkLBracket, "["})
			i++
		case c == ']':
			toks = append(toks, token{tkRBracket, "]"})
			i++
		case c == '.':
			toks = append(toks, token{tkDot, "."})
			i++
		case c == ',':
			toks = append(toks, token{tkComma, ","})
			i++
		case c == '*':
			toks = append(toks, token{tkStar, "*"})
			i++
		case c == '/':
			toks = append(toks, token{tkSlash, "/"})
			i++
		case c == '+':
			toks = append(toks, token{tkPlus, "+"})
			i++
		case c == '-':
			toks = append(toks, token{tkMinus, "-"})
			i++
		case c == '!':
			if i+2 < n && r[i+1] == '=' && r[i+2] == '=' {
				toks = append(toks, token{tkNotEqEq, "!=="})
				i += 3
			} else if i+1 < n && r[i+1] == '=' {
				toks = append(toks, token{tkNotEq, "!="})
				i += 2
			} else {
				toks = append(toks, token{tkBang, "!"})
				i++
			}
		case c == '=':
			if i+2 < n && r[i+1] == '=' && r[i+2] == '=' {
				toks = append(toks, token{tkEqEqEq, "==="})
				i += 3
			} else if i+1 < n && r[i+1] == '=' {
				toks = append(toks, token{tkEqEq, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '='")
			}
		case c == '<':
			if i+1 < n && r[i+1] == '=' {
				toks = append(toks, token{tkLe, "<="})
				i += 2
			} else {
				toks = append(toks, token{tkLt, "<"})
				i++
			}
		case c == '>':
			if i+1 < n && r[i+1] == '=' {
				toks = append(toks, token{tkGe, ">="})
				i += 2
			} else {
				toks = append(toks, token{tkGt, ">"})
				i++
			}
		case c == '&':
			if i+1 < n && r[i+1] == '&' {
				toks = append(toks, token{tkAndAnd, "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '&'")
			}
		case c == '|':
			if i+1 < n && r[i+1] == '|' {
				toks = append(toks, token{tkOrOr, "||"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '|'")
			}
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < n && r[j] != quote {
				if r[j] == '\\' && j+1 < n {
					j++
				}
				sb.WriteRune(r[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tkString, sb.String()})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			for j < n && (r[j] >= '0' && r[j] <= '9' || r[j] == '.') {
				j++
			}
			toks = append(toks, token{tkNumber, string(r[i:j])})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(r[j]) {
				j++
			}
			word := string(r[i:j])
			switch word {
			case "true":
				toks = append(toks, token{tkTrue, word})
			case "false":
				toks = append(toks, token{tkFalse, word})
			case "null":
				toks = append(toks, token{tkNull, word})
			default:
				toks = append(toks, token{tkIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	toks = append(toks, token{tkEOF, ""})
	return toks, nil
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

var funcSet = map[string]bool{
	"exists": true, "typeof": true, "length": true, "contains": true,
	"startswith": true, "endswith": true, "isEmpty": true, "isNumber": true,
	"isString": true, "isArray": true, "isObject": true,
}

// ---- parser (precedence high->low: unary !; * /; + -; comparisons; &&; ||) ----

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) atEnd() bool  { return p.peek().kind == tkEOF }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}
func (p *parser) check(k tokKind) bool { return p.peek().kind == k }
func (p *parser) match(ks ...tokKind) bool {
	for _, k := range ks {
		if p.check(k) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tkOrOr) {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binNode{"||", l, r}
	}
	return l, nil
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.match(tkAndAnd) {
		r, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		l = binNode{"&&", l, r}
	}
	return l, nil
}

var cmpOps = map[tokKind]string{
	tkEqEq: "==", tkNotEq: "!=", tkEqEqEq: "===", tkNotEqEq: "!==",
	tkLt: "<", tkGt: ">", tkLe: "<=", tkGe: ">=",
}

func (p *parser) parseComparison() (node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		if op, ok := cmpOps[p.peek().kind]; ok {
			p.advance()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = binNode{op, l, r}
			continue
		}
		break
	}
	return l, nil
}

func (p *parser) parseAdditive() (node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		if p.check(tkPlus) {
			p.advance()
			r, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			l = binNode{"+", l, r}
			continue
		}
		if p.check(tkMinus) {
			p.advance()
			r, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			l = binNode{"-", l, r}
			continue
		}
		break
	}
	return l, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if p.check(tkStar) {
			p.advance()
			r, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			l = binNode{"*", l, r}
			continue
		}
		if p.check(tkSlash) {
			p.advance()
			r, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			l = binNode{"/", l, r}
			continue
		}
		break
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.match(tkBang) {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{"!", x}, nil
	}
	if p.match(tkMinus) {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{"-", x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, err
		}
		return litNode{f}, nil
	case tkString:
		p.advance()
		return litNode{t.text}, nil
	case tkTrue:
		p.advance()
		return litNode{true}, nil
	case tkFalse:
		p.advance()
		return litNode{false}, nil
	case tkNull:
		p.advance()
		return litNode{nil}, nil
	case tkLParen:
		p.advance()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tkRParen) {
			return nil, fmt.Errorf("expected ')'")
		}
		return n, nil
	case tkIdent:
		name := t.text
		p.advance()
		if funcSet[name] && p.check(tkLParen) {
			p.advance()
			var args []node
			if !p.check(tkRParen) {
				for {
					a, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if !p.match(tkComma) {
						break
					}
				}
			}
			if !p.match(tkRParen) {
				return nil, fmt.Errorf("expected ')' after call args")
			}
			return callNode{name, args}, nil
		}
		return p.parsePathTail(name)
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parsePathTail(first string) (node, error) {
	segs := []pathSeg{{kind: segField, field: first}}
	for {
		if p.match(tkDot) {
			nt := p.advance()
			if nt.kind != tkIdent {
				return nil, fmt.Errorf("expected field name after '.'")
			}
			segs = append(segs, pathSeg{kind: segField, field: nt.text})
			continue
		}
		if p.match(tkLBracket) {
			if p.match(tkStar) {
				if !p.match(tkRBracket) {
					return nil, fmt.Errorf("expected ']' after '*'")
				}
				segs = append(segs, pathSeg{kind: segWildcard})
				continue
			}
			neg := false
			if p.match(tkMinus) {
				neg = true
			}
			nt := p.advance()
			if nt.kind != tkNumber {
				return nil, fmt.Errorf("expected index number in '[...]'")
			}
			idx, err := strconv.Atoi(nt.text)
			if err != nil {
				return nil, fmt.Errorf("invalid index: %s", nt.text)
			}
			if neg {
				idx = -idx
			}
			if !p.match(tkRBracket) {
				return nil, fmt.Errorf("expected ']' after index")
			}
			segs = append(segs, pathSeg{kind: segIndex, index: idx})
			continue
		}
		break
	}
	return pathNode{segs}, nil
}

// ---- evaluation ----

func evalNode(n node, ec *evalCtx) (interface{}, error) {
	switch v := n.(type) {
	case litNode:
		return v.v, nil
	case pathNode:
		return resolvePath(ec, v.segs)
	case unaryNode:
		return evalUnary(v, ec)
	case binNode:
		return evalBin(v, ec)
	case callNode:
		return evalCall(v, ec)
	default:
		return nil, fmt.Errorf("expr: unknown node type %T", n)
	}
}

func evalUnary(u unaryNode, ec *evalCtx) (interface{}, error) {
	x, err := evalNode(u.x, ec)
	if err != nil {
		return nil, err
	}
	switch u.op {
	case "!":
		return !truthy(x), nil
	case "-":
		f, ok := toNumber(x)
		if !ok {
			return nil, fmt.Errorf("unary '-' on non-number")
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unknown unary op %s", u.op)
}

func evalBin(b binNode, ec *evalCtx) (interface{}, error) {
	l, err := evalNode(b.l, ec)
	if err != nil {
		return nil, err
	}
	// short-circuit logical operators
	if b.op == "&&" {
		if !truthy(l) {
			return false, nil
		}
		r, err := evalNode(b.r, ec)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	if b.op == "||" {
		if truthy(l) {
			return true, nil
		}
		r, err := evalNode(b.r, ec)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	r, err := evalNode(b.r, ec)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "===":
		return strictEqual(l, r), nil
	case "!==":
		return !strictEqual(l, r), nil
	case "<", ">", "<=", ">=":
		lf, lok := toNumber(l)
		rf, rok := toNumber(r)
		if lok && rok {
			switch b.op {
			case "<":
				return lf < rf, nil
			case ">":
				return lf > rf, nil
			case "<=":
				return lf <= rf, nil
			case ">=":
				return lf >= rf, nil
			}
		}
		ls, lsok := l.(string)
		rs, rsok := r.(string)
		if lsok && rsok {
			switch b.op {
			case "<":
				return ls < rs, nil
			case ">":
				return ls > rs, nil
			case "<=":
				return ls <= rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
		return nil, fmt.Errorf("comparison on incompatible types")
	case "+", "-", "*", "/":
		lf, lok := toNumber(l)
		rf, rok := toNumber(r)
		if !lok || !rok {
			return nil, fmt.Errorf("arithmetic on non-number")
		}
		switch b.op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return lf / rf, nil
		}
	}
	return nil, fmt.Errorf("unknown binary op %s", b.op)
}

func evalCall(c callNode, ec *evalCtx) (interface{}, error) {
	args := make([]interface{}, len(c.args))
	for i, a := range c.args {
		v, err := evalNode(a, ec)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.name {
	case "exists":
		if len(args) != 1 {
			return nil, fmt.Errorf("exists() takes 1 argument")
		}
		return !isAbsent(args[0]) && args[0] != nil, nil
	case "typeof":
		if len(args) != 1 {
			return nil, fmt.Errorf("typeof() takes 1 argument")
		}
		return typeOf(args[0]), nil
	case "length":
		if len(args) != 1 {
			return nil, fmt.Errorf("length() takes 1 argument")
		}
		return lengthOf(args[0])
	case "contains":
		if len(args) != 2 {
			return nil, fmt.Errorf("contains() takes 2 arguments")
		}
		return containsOf(args[0], args[1]), nil
	case "startswith":
		if len(args) != 2 {
			return nil, fmt.Errorf("startswith() takes 2 arguments")
		}
		s, _ := args[0].(string)
		p, _ := args[1].(string)
		return strings.HasPrefix(s, p), nil
	case "endswith":
		if len(args) != 2 {
			return nil, fmt.Errorf("endswith() takes 2 arguments")
		}
		s, _ := args[0].(string)
		p, _ := args[1].(string)
		return strings.HasSuffix(s, p), nil
	case "isEmpty":
		if len(args) != 1 {
			return nil, fmt.Errorf("isEmpty() takes 1 argument")
		}
		return isEmptyOf(args[0]), nil
	case "isNumber":
		_, ok := toNumber(args[0])
		return ok, nil
	case "isString":
		_, ok := args[0].(string)
		return ok, nil
	case "isArray":
		_, ok := args[0].([]interface{})
		return ok, nil
	case "isObject":
		_, ok := args[0].(map[string]interface{})
		return ok, nil
	}
	return nil, fmt.Errorf("unknown function %s", c.name)
}

func resolvePath(ec *evalCtx, segs []pathSeg) (interface{}, error) {
	for _, s := range segs {
		if s.kind == segField && forbiddenFields[s.field] {
			return Absent, nil
		}
	}
	return resolveSegs(ec, ec.root, segs, true)
}

// resolveSegs walks segs against cur. useGJSON enables the dotted-path
// fast path via gjson when the remaining segments are all plain fields.
func resolveSegs(ec *evalCtx, cur interface{}, segs []pathSeg, useGJSON bool) (interface{}, error) {
	if len(segs) == 0 {
		return cur, nil
	}
	if useGJSON && allFields(segs) {
		if root, ok := cur.(map[string]interface{}); ok {
			b, err := json.Marshal(root)
			if err == nil {
				dotted := fieldPath(segs)
				res := gjson.GetBytes(b, dotted)
				if !res.Exists() {
					return Absent, nil
				}
				return gjsonValue(res), nil
			}
		}
	}
	seg := segs[0]
	switch seg.kind {
	case segField:
		m, ok := cur.(map[string]interface{})
		if !ok {
			return Absent, nil
		}
		v, ok := m[seg.field]
		if !ok {
			return Absent, nil
		}
		return resolveSegs(ec, v, segs[1:], useGJSON)
	case segIndex:
		arr, ok := cur.([]interface{})
		if !ok {
			return Absent, nil
		}
		idx := seg.index
		if idx < 0 {
			idx = len(arr) + idx
		}
		if idx < 0 || idx >= len(arr) {
			return Absent, nil
		}
		return resolveSegs(ec, arr[idx], segs[1:], useGJSON)
	case segWildcard:
		arr, ok := cur.([]interface{})
		if !ok {
			return Absent, nil
		}
		rest := segs[1:]
		out := make([]interface{}, 0, len(arr))
		for _, el := range arr {
			v, err := resolveSegs(ec, el, rest, false)
			if err != nil {
				return nil, err
			}
			if isAbsent(v) {
				out = append(out, nil)
			} else {
				out = append(out, v)
			}
		}
		return out, nil
	}
	return Absent, nil
}

func allFields(segs []pathSeg) bool {
	for _, s := range segs {
		if s.kind != segField || forbiddenFields[s.field] {
			return false
		}
	}
	return true
}

func fieldPath(segs []pathSeg) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.field
	}
	return strings.Join(parts, ".")
}

func gjsonValue(r gjson.Result) interface{} {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	default:
		var v interface{}
		if err := json.Unmarshal([]byte(r.Raw), &v); err == nil {
			return v
		}
		return r.Value()
	}
}

// Lookup reads a dotted path out of an arbitrary JSON-shaped value using
// gjson, for callers outside the expression grammar (e.g. resolving
// accumulated node outputs keyed by nodeRef).
func Lookup(root interface{}, dottedPath string) (interface{}, bool) {
	b, err := json.Marshal(root)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(b, dottedPath)
	if !res.Exists() {
		return nil, false
	}
	return gjsonValue(res), true
}

// ---- coercions ----

// Truthy exports the evaluator's truthiness coercion for callers that need
// to interpret a bare evaluated expression result (e.g. a transition guard)
// without going through Eval's comparison/logical operators.
func Truthy(v interface{}) bool { return truthy(v) }

// truthy applies JavaScript-like truthiness except that an empty object is
// truthy and 0 is falsy (matching the spec's and Handlebars' quirks).
func truthy(v interface{}) bool {
	if v == nil || isAbsent(v) {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return true // empty object is truthy
	default:
		return true
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func looseEqual(a, b interface{}) bool {
	if isAbsent(a) {
		a = nil
	}
	if isAbsent(b) {
		b = nil
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as == bs
	}
	// number <-> string coercion
	if aok && bsok {
		if f, err := strconv.ParseFloat(bs, 64); err == nil {
			return af == f
		}
		return false
	}
	if bok && asok {
		if f, err := strconv.ParseFloat(as, 64); err == nil {
			return bf == f
		}
		return false
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		return ab == bb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func strictEqual(a, b interface{}) bool {
	if isAbsent(a) || isAbsent(b) {
		return isAbsent(a) && isAbsent(b)
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok || bok {
		return aok && bok && af == bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok || bsok {
		return asok && bsok && as == bs
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok || bbok {
		return abok && bbok && ab == bb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func typeOf(v interface{}) string {
	if v == nil {
		return "null"
	}
	if isAbsent(v) {
		return "undefined"
	}
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "object"
	}
}

func lengthOf(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return float64(len(t)), nil
	case []interface{}:
		return float64(len(t)), nil
	case map[string]interface{}:
		return float64(len(t)), nil
	default:
		return nil, fmt.Errorf("length() on unsupported type")
	}
}

func containsOf(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case []interface{}:
		for _, e := range h {
			if looseEqual(e, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func isEmptyOf(v interface{}) bool {
	if v == nil || isAbsent(v) {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
