package host

import (
	"errors"
	"strings"

	"github.com/roach88/gall/internal/script"
)

// invocation describes how a script block is called.
type invocation struct {
	// positional holds arguments passed by position, e.g. by .Invoke().
	positional []any
	// args holds command-line style arguments, in order.
	args []argument
	// input is the pipeline input; hasInput reports whether the block was
	// called as a pipeline element.
	input    []any
	hasInput bool
	// dollarUnder is bound to $_ when hasUnder is set.
	dollarUnder any
	hasUnder    bool
	// dot runs the block in the caller's scope.
	dot bool
}

func (inv invocation) arguments() []argument {
	if len(inv.positional) == 0 {
		return inv.args
	}
	out := make([]argument, 0, len(inv.positional)+len(inv.args))
	for _, v := range inv.positional {
		out = append(out, argument{value: v, hasValue: true})
	}
	return append(out, inv.args...)
}

// invokeBlock runs a script block and returns what it wrote to the output
// stream. The outputs collected so far are returned even with an error, so
// an exit can keep them.
func (r *runner) invokeBlock(sb *script.ScriptBlock, params []*script.Parameter, inv invocation) ([]any, error) {
	cr := r
	if !inv.dot {
		cr = r.child()
	}
	if sb.ParamBlock != nil && len(params) == 0 {
		params = sb.ParamBlock.Parameters
	}
	if err := cr.bindParameters(params, inv); err != nil {
		return nil, err
	}
	if inv.hasUnder {
		cr.scope.set("_", inv.dollarUnder)
	}
	var out []any
	err := cr.runBlocks(sb, inv, &out)
	var ret *returnSignal
	if errors.As(err, &ret) {
		err = nil
	}
	return out, err
}

func (r *runner) runBlocks(sb *script.ScriptBlock, inv invocation, out *[]any) error {
	if sb.Begin != nil {
		if err := r.execNamed(sb.Begin, out); err != nil {
			return err
		}
	}
	if sb.Process != nil {
		if !inv.hasInput {
			if err := r.execNamed(sb.Process, out); err != nil {
				return err
			}
		}
		for _, item := range inv.input {
			r.scope.set("_", item)
			err := r.execNamed(sb.Process, out)
			var ret *returnSignal
			if err != nil && !errors.As(err, &ret) {
				return err
			}
		}
	}
	if sb.End != nil {
		r.scope.set("input", append([]any{}, inv.input...))
		return r.execNamed(sb.End, out)
	}
	return nil
}

func (r *runner) execNamed(nb *script.NamedBlock, out *[]any) error {
	return r.execStatements(nb.Statements, nb.Traps, out)
}

func (r *runner) execBlock(b *script.StatementBlock, out *[]any) error {
	if b == nil {
		return nil
	}
	return r.execStatements(b.Statements, b.Traps, out)
}

// execStatements runs a statement list. A runtime error is handed to the
// first trap that accepts it; the trap's body decides whether execution
// resumes at the next statement (the default, or continue) or the error
// propagates (break).
func (r *runner) execStatements(stmts []script.Statement, traps []*script.Trap, out *[]any) error {
	for _, st := range stmts {
		err := r.exec(st, out)
		if err == nil {
			continue
		}
		if len(traps) == 0 || isControlFlow(err) {
			return err
		}
		var re *RuntimeError
		if !errors.As(err, &re) || re.Code == ErrCodeQuotaExceeded {
			return err
		}
		trap := findTrap(traps, re)
		if trap == nil {
			return err
		}
		r.s.logger.Debug("trap", "error", re.Message)
		tr := r.child()
		tr.scope.set("_", &ErrorRecord{Err: re})
		terr := tr.execBlock(trap.Body, out)
		var brk *breakSignal
		var cont *continueSignal
		switch {
		case terr == nil:
		case errors.As(terr, &brk) && brk.label == "":
			return err
		case errors.As(terr, &cont) && cont.label == "":
		default:
			return terr
		}
	}
	return nil
}

func findTrap(traps []*script.Trap, re *RuntimeError) *script.Trap {
	for _, t := range traps {
		if t.Type == nil || re.matches(t.Type.Type.Name) {
			return t
		}
	}
	return nil
}

// exec runs one statement, appending its output.
func (r *runner) exec(st script.Statement, out *[]any) error {
	switch s := st.(type) {
	case *script.Pipeline:
		return r.execPipeline(s, out)
	case *script.Assignment:
		_, err := r.assignment(s)
		return err
	case *script.If:
		for _, c := range s.Clauses {
			cond, err := r.statementValue(c.Condition)
			if err != nil {
				return err
			}
			if toBool(cond) {
				return r.execBlock(c.Body, out)
			}
		}
		return r.execBlock(s.Else, out)
	case *script.While:
		return r.loop(s, s.Label, nil, s.Condition, nil, true, s.Body, out)
	case *script.DoWhile:
		return r.loop(s, s.Label, nil, s.Condition, nil, false, s.Body, out)
	case *script.DoUntil:
		return r.doUntil(s, out)
	case *script.For:
		return r.loop(s, s.Label, s.Init, s.Condition, s.Iterator, true, s.Body, out)
	case *script.ForEach:
		return r.forEach(s, out)
	case *script.Switch:
		return r.execSwitch(s, out)
	case *script.Try:
		return r.execTry(s, out)
	case *script.Trap:
		return nil
	case *script.Break:
		label, err := r.label(s.Label)
		if err != nil {
			return err
		}
		return &breakSignal{label: label}
	case *script.Continue:
		label, err := r.label(s.Label)
		if err != nil {
			return err
		}
		return &continueSignal{label: label}
	case *script.Return:
		if s.Pipeline != nil {
			if err := r.exec(s.Pipeline, out); err != nil {
				return err
			}
		}
		return &returnSignal{}
	case *script.Exit:
		code := 0
		if s.Pipeline != nil {
			v, err := r.statementValue(s.Pipeline)
			if err != nil {
				return err
			}
			if code, err = toInt(v); err != nil {
				return atNode(err, s)
			}
		}
		return &exitSignal{code: code}
	case *script.Throw:
		return r.execThrow(s)
	case *script.Data:
		var res []any
		if err := r.execBlock(s.Body, &res); err != nil {
			return err
		}
		if s.Variable == "" {
			*out = append(*out, res...)
			return nil
		}
		r.scope.set(s.Variable, norm(collapse(res)))
		return nil
	case *script.FunctionDefinition:
		r.scope.funcs[strings.ToLower(s.Name)] = &function{
			name:   s.Name,
			filter: s.IsFilter,
			params: s.Parameters,
			body:   s.Body,
		}
		return nil
	case *script.BlockStatement:
		return r.execBlock(s.Body, out)
	}
	return newError(st, ErrCodeRuntime, "Unsupported statement %T.", st)
}

func (r *runner) label(e script.Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	v, err := r.eval(e)
	if err != nil {
		return "", err
	}
	return strings.ToLower(toString(v)), nil
}

// loopExit reports how a loop reacts to an error from its body: stop the
// loop, go on with the next iteration, or propagate err.
func loopExit(err error, label string) (stop bool, pass error) {
	var brk *breakSignal
	if errors.As(err, &brk) {
		if brk.label == "" || strings.EqualFold(brk.label, label) {
			return true, nil
		}
		return true, err
	}
	var cont *continueSignal
	if errors.As(err, &cont) {
		if cont.label == "" || strings.EqualFold(cont.label, label) {
			return false, nil
		}
		return true, err
	}
	return true, err
}

// loop runs while, do-while and for loops. pretest is false for do-while.
func (r *runner) loop(n script.Node, label string, init, cond, iter script.Statement,
	pretest bool, body *script.StatementBlock, out *[]any) error {
	if init != nil {
		var discard []any
		if err := r.exec(init, &discard); err != nil {
			return err
		}
	}
	for first := true; ; first = false {
		if pretest || !first {
			if cond != nil {
				v, err := r.statementValue(cond)
				if err != nil {
					return err
				}
				if !toBool(v) {
					return nil
				}
			}
		}
		if err := r.step(n); err != nil {
			return err
		}
		if err := r.execBlock(body, out); err != nil {
			if stop, pass := loopExit(err, label); stop {
				return pass
			}
		}
		if iter != nil {
			var discard []any
			if err := r.exec(iter, &discard); err != nil {
				return err
			}
		}
	}
}

func (r *runner) doUntil(s *script.DoUntil, out *[]any) error {
	for {
		if err := r.step(s); err != nil {
			return err
		}
		if err := r.execBlock(s.Body, out); err != nil {
			if stop, pass := loopExit(err, s.Label); stop {
				return pass
			}
		}
		v, err := r.statementValue(s.Condition)
		if err != nil {
			return err
		}
		if toBool(v) {
			return nil
		}
	}
}

func (r *runner) forEach(s *script.ForEach, out *[]any) error {
	coll, err := r.statementValue(s.Collection)
	if err != nil {
		return err
	}
	if norm(coll) == nil {
		return nil
	}
	for _, item := range enumerate(coll) {
		if err := r.step(s); err != nil {
			return err
		}
		if err := r.writeVariable(s.Variable, item); err != nil {
			return err
		}
		if err := r.execBlock(s.Body, out); err != nil {
			if stop, pass := loopExit(err, s.Label); stop {
				return pass
			}
		}
	}
	return nil
}

func (r *runner) execSwitch(s *script.Switch, out *[]any) error {
	v, err := r.statementValue(s.Condition)
	if err != nil {
		return err
	}
	saved, hadUnder := r.scope.vars["_"]
	defer func() {
		if hadUnder {
			r.scope.vars["_"] = saved
		} else {
			delete(r.scope.vars, "_")
		}
	}()
	for _, item := range enumerate(v) {
		if err := r.step(s); err != nil {
			return err
		}
		r.scope.set("_", item)
		matched := false
		next := false
		for _, c := range s.Clauses {
			ok, err := r.switchMatch(s, c.Pattern, item)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			matched = true
			if err := r.execBlock(c.Body, out); err != nil {
				stop, pass := loopExit(err, s.Label)
				if stop {
					return pass
				}
				next = true
				break
			}
		}
		if !matched && !next && s.Default != nil {
			if err := r.execBlock(s.Default, out); err != nil {
				if stop, pass := loopExit(err, s.Label); stop {
					return pass
				}
			}
		}
	}
	return nil
}

func (r *runner) switchMatch(s *script.Switch, pattern script.Expr, item any) (bool, error) {
	if sbe, ok := pattern.(*script.ScriptBlockExpression); ok {
		res, err := r.invokeBlock(sbe.Body, nil, invocation{dollarUnder: item, hasUnder: true})
		if err != nil {
			return false, err
		}
		return toBool(collapse(res)), nil
	}
	p, err := r.eval(pattern)
	if err != nil {
		return false, err
	}
	switch {
	case s.Regex:
		return r.compareScalar(script.TokImatch, toString(item), toString(p), s.CaseSensitive, true)
	case s.Wildcard:
		return r.compareScalar(script.TokIlike, toString(item), toString(p), s.CaseSensitive, false)
	}
	if _, isString := norm(p).(string); isString {
		return r.equal(toString(item), p, s.CaseSensitive), nil
	}
	return r.equal(item, p, s.CaseSensitive), nil
}

func (r *runner) execTry(s *script.Try, out *[]any) error {
	err := r.execBlock(s.Body, out)
	var re *RuntimeError
	if err != nil && !isControlFlow(err) && errors.As(err, &re) && re.Code != ErrCodeQuotaExceeded {
		for _, c := range s.Catches {
			if !catches(c, re) {
				continue
			}
			saved, hadUnder := r.scope.vars["_"]
			r.scope.set("_", &ErrorRecord{Err: re})
			err = r.execBlock(c.Body, out)
			if hadUnder {
				r.scope.vars["_"] = saved
			} else {
				delete(r.scope.vars, "_")
			}
			break
		}
	}
	if s.Finally != nil {
		if ferr := r.execBlock(s.Finally, out); ferr != nil {
			return ferr
		}
	}
	return err
}

func catches(c *script.CatchClause, re *RuntimeError) bool {
	if len(c.Types) == 0 {
		return true
	}
	for _, t := range c.Types {
		if re.matches(t.Type.Name) {
			return true
		}
	}
	return false
}

func (r *runner) execThrow(s *script.Throw) error {
	var v any
	if s.Pipeline != nil {
		var err error
		if v, err = r.statementValue(s.Pipeline); err != nil {
			return err
		}
	} else if cur, ok := r.scope.get("_"); ok {
		// A bare throw inside catch or trap rethrows the current error.
		if rec, ok := cur.(*ErrorRecord); ok {
			return rec.Err
		}
	}
	switch x := norm(v).(type) {
	case *ErrorRecord:
		return x.Err
	case nil:
		return newError(s, ErrCodeThrown, "ScriptHalted")
	case *Exception:
		return &RuntimeError{Code: ErrCodeThrown, Message: x.Message, Extent: s.Extent(), Thrown: v}
	}
	return &RuntimeError{Code: ErrCodeThrown, Message: toString(v), Extent: s.Extent(), Thrown: norm(v)}
}

// execPipeline runs the elements left to right, feeding each the previous
// element's output.
func (r *runner) execPipeline(p *script.Pipeline, out *[]any) error {
	var items []any
	for i, el := range p.Elements {
		switch el := el.(type) {
		case *script.CommandExpression:
			v, err := r.eval(el.Expr)
			if err != nil {
				return err
			}
			items = enumerate(v)
			if isIncrement(el.Expr) && len(p.Elements) == 1 {
				items = nil
			}
			if items, err = r.redirect(el.Redirections, items); err != nil {
				return err
			}
		case *script.Command:
			res, err := r.invokeCommand(el, items, i > 0)
			if err != nil {
				return atNode(err, el)
			}
			if items, err = r.redirect(el.Redirections, res); err != nil {
				return err
			}
		}
	}
	*out = append(*out, items...)
	return nil
}

// redirect applies output redirections. Sending the success stream to a
// file discards it; merging streams leaves the output unchanged.
func (r *runner) redirect(reds []script.Redirection, items []any) ([]any, error) {
	for _, red := range reds {
		fr, ok := red.(*script.FileRedirection)
		if !ok {
			continue
		}
		if _, err := r.eval(fr.Location); err != nil {
			return nil, err
		}
		if fr.FromStream == "1" || fr.FromStream == "*" {
			items = nil
		}
	}
	return items, nil
}

// commandArguments evaluates the arguments of a command. A splatted
// hashtable becomes named arguments, a splatted array positional ones.
func (r *runner) commandArguments(elems []script.Node) ([]argument, error) {
	var args []argument
	for _, el := range elems {
		switch a := el.(type) {
		case *script.CommandParameter:
			arg := argument{name: a.Name}
			if a.Argument != nil {
				v, err := r.eval(a.Argument)
				if err != nil {
					return nil, err
				}
				arg.value, arg.hasValue = v, true
			}
			args = append(args, arg)
		case *script.Variable:
			v, err := r.eval(a)
			if err != nil {
				return nil, err
			}
			if !a.Splatted {
				args = append(args, argument{value: v, hasValue: true})
				continue
			}
			switch x := norm(v).(type) {
			case *Hashtable:
				for _, k := range x.Keys() {
					val, _ := x.Get(k)
					args = append(args, argument{name: toString(k), value: val, hasValue: true})
				}
			default:
				for _, item := range enumerate(v) {
					args = append(args, argument{value: item, hasValue: true})
				}
			}
		case script.Expr:
			v, err := r.eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, argument{value: v, hasValue: true})
		}
	}
	return args, nil
}

// invokeCommand runs a command element. Functions shadow builtins.
func (r *runner) invokeCommand(cmd *script.Command, input []any, piped bool) ([]any, error) {
	if err := r.step(cmd); err != nil {
		return nil, err
	}
	args, err := r.commandArguments(cmd.Elements[1:])
	if err != nil {
		return nil, err
	}
	inv := invocation{args: args, input: input, hasInput: piped, dot: cmd.Invocation == script.TokDot}

	var name string
	if sc, ok := cmd.Elements[0].(*script.StringConstant); ok {
		name = sc.Value
	} else {
		target, err := r.eval(cmd.Elements[0].(script.Expr))
		if err != nil {
			return nil, err
		}
		if sb, ok := norm(target).(*ScriptBlockValue); ok {
			return r.invokeBlock(sb.Body, nil, inv)
		}
		name = toString(target)
	}

	if f, ok := r.scope.lookupFunc(strings.ToLower(name)); ok {
		return r.invokeFunction(f, inv)
	}
	if b, ok := lookupBuiltin(name); ok {
		bound, err := bindArguments(b.params, inv.arguments())
		if err != nil {
			return nil, err
		}
		if len(bound.rest) > 0 {
			return nil, newError(nil, ErrCodeParameterBinding,
				"A positional parameter cannot be found that accepts argument '%s'.", toString(bound.rest[0]))
		}
		r.s.logger.Debug("command", "name", b.name, "input", len(input))
		res, err := b.run(r, inv, bound)
		if err != nil {
			return nil, err
		}
		return wrapOutputs(res), nil
	}
	return nil, newError(cmd, ErrCodeCommandNotFound,
		"The term '%s' is not recognized as the name of a cmdlet, function, script file, or operable program.", name)
}

// wrapOutputs marks values written by builtin commands.
func wrapOutputs(items []any) []any {
	for i, v := range items {
		if v == nil {
			continue
		}
		if _, ok := v.(*script.PSObject); !ok {
			items[i] = &script.PSObject{Base: v}
		}
	}
	return items
}

func (r *runner) invokeFunction(f *function, inv invocation) ([]any, error) {
	if !f.filter || !inv.hasInput {
		return r.invokeBlock(f.body, f.params, inv)
	}
	var out []any
	for _, item := range inv.input {
		one := inv
		one.input, one.hasInput = nil, false
		one.dollarUnder, one.hasUnder = item, true
		res, err := r.invokeBlock(f.body, f.params, one)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// bindParameters binds arguments to a block's declared parameters and
// leaves the unbound positional arguments in $args.
func (r *runner) bindParameters(params []*script.Parameter, inv invocation) error {
	args := inv.arguments()
	if len(params) == 0 && len(args) == 0 {
		r.scope.set("args", []any{})
		return nil
	}
	specs := make([]paramSpec, len(params))
	types := make([]*TypeValue, len(params))
	for i, p := range params {
		specs[i] = paramSpec{name: p.Name.UnqualifiedName(), position: i}
		for _, a := range p.Attributes {
			tc, ok := a.(*script.TypeConstraint)
			if !ok {
				continue
			}
			t, err := r.resolveType(tc.Type, tc)
			if err != nil {
				return err
			}
			types[i] = t
			switch strings.ToLower(tc.Type.Name) {
			case "switch", "switchparameter", "system.management.automation.switchparameter":
				specs[i].isSwitch = true
			}
		}
	}
	bound, err := bindArguments(specs, args)
	if err != nil {
		return err
	}
	for i, p := range params {
		v, ok := bound.values[strings.ToLower(specs[i].name)]
		switch {
		case !ok && p.Default != nil:
			if v, err = r.eval(p.Default); err != nil {
				return err
			}
		case !ok && specs[i].isSwitch:
			v = false
		}
		if types[i] != nil && (ok || p.Default != nil) {
			if v, err = types[i].convert(r, v); err != nil {
				return atNode(err, p)
			}
		}
		r.scope.set(specs[i].name, v)
	}
	r.scope.set("args", append([]any{}, bound.rest...))
	return nil
}
