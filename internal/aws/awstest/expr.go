package awstest

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// exprEnv resolves #names and :values for one request.
type exprEnv struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e exprEnv) attrName(tok string) (string, error) {
	if strings.HasPrefix(tok, "#") {
		n, ok := e.names[tok]
		if !ok {
			return "", fmt.Errorf("undefined expression attribute name %s", tok)
		}
		return n, nil
	}
	return tok, nil
}

func (e exprEnv) operand(item map[string]types.AttributeValue, tok string) (types.AttributeValue, error) {
	if strings.HasPrefix(tok, ":") {
		v, ok := e.values[tok]
		if !ok {
			return nil, fmt.Errorf("undefined expression attribute value %s", tok)
		}
		return v, nil
	}
	name, err := e.attrName(tok)
	if err != nil {
		return nil, err
	}
	return item[name], nil
}

func tokenize(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(' || c == ')' || c == ',' || c == '=' || c == '+':
			toks = append(toks, string(c))
			i++
		case c == '<' || c == '>':
			if i+1 < len(s) && (s[i+1] == '=' || (c == '<' && s[i+1] == '>')) {
				toks = append(toks, s[i:i+2])
				i += 2
				continue
			}
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && isIdent(rune(s[j])) {
				j++
			}
			if j == i {
				j = i + 1
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func isIdent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '#' || r == ':' || r == '.'
}

// condParser evaluates a DynamoDB condition expression against an item.
// Supported: AND, OR, NOT, parentheses, attribute_exists, attribute_not_exists,
// the comparators = and <>, and IN.
type condParser struct {
	toks []string
	pos  int
	env  exprEnv
	item map[string]types.AttributeValue
}

func evalCondition(expr string, env exprEnv, item map[string]types.AttributeValue) (bool, error) {
	p := &condParser{toks: tokenize(expr), env: env, item: item}
	ok, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("unexpected token %q in %q", p.toks[p.pos], expr)
	}
	return ok, nil
}

func (p *condParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *condParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *condParser) or() (bool, error) {
	left, err := p.and()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		right, err := p.and()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) and() (bool, error) {
	left, err := p.not()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		right, err := p.not()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *condParser) not() (bool, error) {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		v, err := p.not()
		return !v, err
	}
	return p.primary()
}

func (p *condParser) primary() (bool, error) {
	tok := p.next()
	switch {
	case tok == "(":
		v, err := p.or()
		if err != nil {
			return false, err
		}
		return v, p.expect(")")
	case tok == "attribute_exists" || tok == "attribute_not_exists":
		if err := p.expect("("); err != nil {
			return false, err
		}
		name, err := p.env.attrName(p.next())
		if err != nil {
			return false, err
		}
		if err := p.expect(")"); err != nil {
			return false, err
		}
		_, exists := p.item[name]
		if tok == "attribute_exists" {
			return exists, nil
		}
		return !exists, nil
	}

	left, err := p.env.operand(p.item, tok)
	if err != nil {
		return false, err
	}
	op := p.next()
	switch {
	case op == "=" || op == "<>":
		right, err := p.env.operand(p.item, p.next())
		if err != nil {
			return false, err
		}
		eq := equalAV(left, right)
		if op == "=" {
			return eq, nil
		}
		return !eq, nil
	case strings.EqualFold(op, "IN"):
		if err := p.expect("("); err != nil {
			return false, err
		}
		found := false
		for {
			right, err := p.env.operand(p.item, p.next())
			if err != nil {
				return false, err
			}
			if equalAV(left, right) {
				found = true
			}
			sep := p.next()
			if sep == ")" {
				break
			}
			if sep != "," {
				return false, fmt.Errorf("expected , or ) in IN list, got %q", sep)
			}
		}
		return found, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func equalAV(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// applyUpdate applies a SET/REMOVE update expression to item in place.
// SET operands may be a value, a path, or if_not_exists(path, value).
func applyUpdate(expr string, env exprEnv, item map[string]types.AttributeValue) error {
	toks := tokenize(expr)
	pos := 0
	for pos < len(toks) {
		clause := strings.ToUpper(toks[pos])
		pos++
		end := pos
		for end < len(toks) && !isClauseKeyword(toks[end]) {
			end++
		}
		body := toks[pos:end]
		pos = end

		switch clause {
		case "SET":
			for _, a := range splitTopLevel(body) {
				if len(a) < 3 || a[1] != "=" {
					return fmt.Errorf("bad SET action %v", a)
				}
				name, err := env.attrName(a[0])
				if err != nil {
					return err
				}
				v, err := setOperand(a[2:], env, item)
				if err != nil {
					return err
				}
				item[name] = v
			}
		case "REMOVE":
			for _, a := range splitTopLevel(body) {
				name, err := env.attrName(a[0])
				if err != nil {
					return err
				}
				delete(item, name)
			}
		default:
			return fmt.Errorf("unsupported update clause %q", clause)
		}
	}
	return nil
}

func setOperand(toks []string, env exprEnv, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	if len(toks) == 1 {
		return env.operand(item, toks[0])
	}
	// if_not_exists ( path , value )
	if len(toks) == 6 && toks[0] == "if_not_exists" {
		cur, err := env.operand(item, toks[2])
		if err != nil {
			return nil, err
		}
		if cur != nil {
			return cur, nil
		}
		return env.operand(item, toks[4])
	}
	return nil, fmt.Errorf("unsupported SET operand %v", toks)
}

func isClauseKeyword(tok string) bool {
	switch strings.ToUpper(tok) {
	case "SET", "REMOVE":
		return true
	}
	return false
}

func splitTopLevel(toks []string) [][]string {
	var out [][]string
	depth, start := 0, 0
	for i, t := range toks {
		switch t {
		case "(":
			depth++
		case ")":
			depth--
		case ",":
			if depth == 0 {
				out = append(out, toks[start:i])
				start = i + 1
			}
		}
	}
	if start < len(toks) {
		out = append(out, toks[start:])
	}
	return out
}
