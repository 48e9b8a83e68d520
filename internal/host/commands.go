package host

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/roach88/gall/internal/script"
)

// argument is one command-line argument: -name[:value] or a bare value.
type argument struct {
	name     string
	value    any
	hasValue bool
}

type paramSpec struct {
	name     string
	aliases  []string
	position int // -1 for named-only parameters
	isSwitch bool
	// remaining collects every positional argument from position on.
	remaining bool
}

type boundArgs struct {
	values map[string]any
	rest   []any
}

func (b boundArgs) has(name string) bool {
	_, ok := b.values[strings.ToLower(name)]
	return ok
}

func (b boundArgs) get(name string) any {
	return b.values[strings.ToLower(name)]
}

func (b boundArgs) flag(name string) bool {
	return toBool(b.values[strings.ToLower(name)])
}

// matchParam resolves a parameter name, accepting unambiguous prefixes.
func matchParam(specs []paramSpec, given string) (*paramSpec, error) {
	var prefixed []*paramSpec
	for i := range specs {
		s := &specs[i]
		if strings.EqualFold(s.name, given) {
			return s, nil
		}
		for _, a := range s.aliases {
			if strings.EqualFold(a, given) {
				return s, nil
			}
		}
		if len(given) < len(s.name) && strings.EqualFold(s.name[:len(given)], given) {
			prefixed = append(prefixed, s)
		}
	}
	switch len(prefixed) {
	case 0:
		return nil, newError(nil, ErrCodeParameterBinding,
			"A parameter cannot be found that matches parameter name '%s'.", given)
	case 1:
		return prefixed[0], nil
	}
	names := make([]string, len(prefixed))
	for i, s := range prefixed {
		names[i] = "-" + s.name
	}
	return nil, newError(nil, ErrCodeParameterBinding,
		"Parameter cannot be processed because the parameter name '%s' is ambiguous. Possible matches include: %s.",
		given, strings.Join(names, " "))
}

// bindArguments binds named arguments first, then fills positional
// parameters in position order. Unbound positional values are returned in
// rest.
func bindArguments(specs []paramSpec, args []argument) (boundArgs, error) {
	b := boundArgs{values: make(map[string]any)}
	var positional []any
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a.name == "" {
			positional = append(positional, a.value)
			continue
		}
		spec, err := matchParam(specs, a.name)
		if err != nil {
			return b, err
		}
		key := strings.ToLower(spec.name)
		if spec.isSwitch {
			v := true
			if a.hasValue {
				v = toBool(a.value)
			}
			b.values[key] = v
			continue
		}
		if !a.hasValue {
			if i+1 >= len(args) || args[i+1].name != "" {
				return b, newError(nil, ErrCodeParameterBinding,
					"Missing an argument for parameter '%s'. Specify a parameter of type 'System.Object' and try again.", spec.name)
			}
			i++
			a.value = args[i].value
		}
		b.values[key] = a.value
	}

	ordered := make([]*paramSpec, 0, len(specs))
	for i := range specs {
		if specs[i].position >= 0 && !specs[i].isSwitch {
			ordered = append(ordered, &specs[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].position < ordered[j].position })
	pos := 0
	for _, s := range ordered {
		if pos >= len(positional) {
			break
		}
		key := strings.ToLower(s.name)
		if _, done := b.values[key]; done {
			continue
		}
		if s.remaining {
			rest := append([]any(nil), positional[pos:]...)
			if len(rest) == 1 {
				b.values[key] = rest[0]
			} else {
				b.values[key] = rest
			}
			pos = len(positional)
			break
		}
		b.values[key] = positional[pos]
		pos++
	}
	b.rest = positional[pos:]
	return b, nil
}

// builtin is a command implemented in Go.
type builtin struct {
	name    string
	aliases []string
	params  []paramSpec
	run     func(r *runner, inv invocation, b boundArgs) ([]any, error)
}

var builtins = map[string]*builtin{}

func registerBuiltin(b *builtin) {
	builtins[strings.ToLower(b.name)] = b
	for _, a := range b.aliases {
		builtins[strings.ToLower(a)] = b
	}
}

func lookupBuiltin(name string) (*builtin, bool) {
	b, ok := builtins[strings.ToLower(name)]
	return b, ok
}

func named(name string, aliases ...string) paramSpec {
	return paramSpec{name: name, aliases: aliases, position: -1}
}

func positional(name string, pos int) paramSpec {
	return paramSpec{name: name, position: pos}
}

func switchParam(name string, aliases ...string) paramSpec {
	return paramSpec{name: name, aliases: aliases, position: -1, isSwitch: true}
}

// whereOperators are the comparison switches of Where-Object's simplified
// syntax, e.g. Where-Object Name -eq 'x'.
var whereOperators = []string{
	"EQ", "NE", "GT", "GE", "LT", "LE", "Like", "NotLike", "Match", "NotMatch",
	"Contains", "NotContains", "In", "NotIn", "Is", "IsNot",
	"CEQ", "CNE", "CGT", "CGE", "CLT", "CLE", "CLike", "CNotLike", "CMatch", "CNotMatch",
	"CContains", "CNotContains", "CIn", "CNotIn",
}

func init() {
	whereParams := []paramSpec{
		positional("FilterScript", 0),
		named("Property"),
		positional("Value", 1),
		named("InputObject"),
		switchParam("Not"),
	}
	for _, op := range whereOperators {
		whereParams = append(whereParams, switchParam(op))
	}
	registerBuiltin(&builtin{name: "Where-Object", aliases: []string{"?", "where"}, params: whereParams, run: whereObject})
	registerBuiltin(&builtin{
		name:    "ForEach-Object",
		aliases: []string{"%", "foreach"},
		params: []paramSpec{
			{name: "Process", position: 0, remaining: true},
			named("Begin"),
			named("End"),
			named("MemberName"),
			named("ArgumentList", "Args"),
			named("InputObject"),
		},
		run: forEachObject,
	})
	registerBuiltin(&builtin{
		name:    "Select-Object",
		aliases: []string{"select"},
		params: []paramSpec{
			positional("Property", 0),
			named("ExpandProperty"),
			named("First"),
			named("Last"),
			named("Skip"),
			named("Index"),
			switchParam("Unique"),
			named("InputObject"),
		},
		run: selectObject,
	})
	registerBuiltin(&builtin{
		name:    "Sort-Object",
		aliases: []string{"sort"},
		params: []paramSpec{
			positional("Property", 0),
			switchParam("Descending"),
			switchParam("Unique"),
			switchParam("CaseSensitive"),
			named("InputObject"),
		},
		run: sortObject,
	})
	registerBuiltin(&builtin{
		name:    "Measure-Object",
		aliases: []string{"measure"},
		params: []paramSpec{
			positional("Property", 0),
			switchParam("Sum"),
			switchParam("Average"),
			switchParam("Maximum"),
			switchParam("Minimum"),
			named("InputObject"),
		},
		run: measureObject,
	})
	registerBuiltin(&builtin{
		name:    "Write-Output",
		aliases: []string{"echo", "write"},
		params: []paramSpec{
			{name: "InputObject", position: 0, remaining: true},
			switchParam("NoEnumerate"),
		},
		run: writeOutput,
	})
	registerBuiltin(&builtin{
		name:    "Get-Variable",
		aliases: []string{"gv"},
		params: []paramSpec{
			positional("Name", 0),
			switchParam("ValueOnly"),
			named("Scope"),
		},
		run: getVariable,
	})
	registerBuiltin(&builtin{
		name: "Get-Date",
		params: []paramSpec{
			positional("Date", 0),
			named("Format"),
			named("Year"), named("Month"), named("Day"),
			named("Hour"), named("Minute"), named("Second"), named("Millisecond"),
		},
		run: getDate,
	})
	registerBuiltin(&builtin{
		name:   "Out-Null",
		params: []paramSpec{named("InputObject")},
		run: func(*runner, invocation, boundArgs) ([]any, error) {
			return nil, nil
		},
	})
}

// inputItems returns the pipeline input, or -InputObject when given.
func inputItems(inv invocation, b boundArgs) []any {
	if b.has("InputObject") {
		return []any{b.get("InputObject")}
	}
	return inv.input
}

func scriptBlockArg(v any) (*ScriptBlockValue, bool) {
	sb, ok := norm(v).(*ScriptBlockValue)
	return sb, ok
}

func whereObject(r *runner, inv invocation, b boundArgs) ([]any, error) {
	items := inputItems(inv, b)
	if sb, ok := scriptBlockArg(b.get("FilterScript")); ok {
		var out []any
		for _, item := range items {
			if err := r.step(nil); err != nil {
				return nil, err
			}
			res, err := r.invokeBlock(sb.Body, nil, invocation{dollarUnder: item, hasUnder: true, dot: true})
			if err != nil {
				return nil, err
			}
			if toBool(collapse(res)) {
				out = append(out, item)
			}
		}
		return out, nil
	}

	prop := b.get("Property")
	if !b.has("Property") {
		prop = b.get("FilterScript")
	}
	if norm(prop) == nil {
		return nil, newError(nil, ErrCodeParameterBinding,
			"Cannot bind argument to parameter 'FilterScript' because it is null.")
	}
	name := toString(prop)
	var op script.TokenKind
	for _, sw := range whereOperators {
		if b.flag(sw) {
			op, _ = script.LookupOperator(strings.ToLower(sw))
		}
	}
	var out []any
	for _, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		v, err := r.getMember(item, name)
		if err != nil {
			return nil, err
		}
		var keep bool
		switch {
		case op != 0:
			res, err := r.binary(op, v, b.get("Value"))
			if err != nil {
				return nil, err
			}
			keep = toBool(res)
		case b.flag("Not"):
			keep = !toBool(v)
		default:
			keep = toBool(v)
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

func forEachObject(r *runner, inv invocation, b boundArgs) ([]any, error) {
	items := inputItems(inv, b)
	var blocks []any
	if b.has("Process") {
		blocks = asList(b.get("Process"))
	}
	if b.has("MemberName") {
		blocks = []any{b.get("MemberName")}
	}
	if len(blocks) > 0 && !isScriptBlock(blocks[0]) {
		return r.forEachMember(items, toString(blocks[0]), asList(b.get("ArgumentList")), b.has("ArgumentList"))
	}

	var begin, end []any
	if b.has("Begin") {
		begin = asList(b.get("Begin"))
	}
	if b.has("End") {
		end = asList(b.get("End"))
	}
	switch {
	case len(blocks) == 2:
		begin, blocks = blocks[:1], blocks[1:]
	case len(blocks) > 2:
		begin, end, blocks = blocks[:1], blocks[len(blocks)-1:], blocks[1:len(blocks)-1]
	}

	var out []any
	run := func(list []any, item any, hasItem bool) error {
		for _, v := range list {
			sb, ok := scriptBlockArg(v)
			if !ok {
				if norm(v) == nil {
					continue
				}
				return newError(nil, ErrCodeParameterBinding,
					"Cannot convert '%s' to the type 'System.Management.Automation.ScriptBlock'.", toString(v))
			}
			res, err := r.invokeBlock(sb.Body, nil, invocation{dollarUnder: item, hasUnder: hasItem, dot: true})
			out = append(out, res...)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := run(begin, nil, false); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		if err := run(blocks, item, true); err != nil {
			return nil, err
		}
	}
	if err := run(end, nil, false); err != nil {
		return nil, err
	}
	return out, nil
}

func isScriptBlock(v any) bool {
	_, ok := scriptBlockArg(v)
	return ok
}

// forEachMember implements ForEach-Object Name and ForEach-Object Method
// -ArgumentList a, b.
func (r *runner) forEachMember(items []any, name string, args []any, call bool) ([]any, error) {
	var out []any
	for _, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		var v any
		var err error
		if call {
			v, err = r.invokeMethod(item, name, args)
		} else {
			v, err = r.getMember(item, name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, enumerate(v)...)
	}
	return out, nil
}

// calculated is a Select-Object or Sort-Object property: a name, a script
// block, or a hashtable with Name and Expression.
type calculated struct {
	name       string
	expr       *ScriptBlockValue
	descending *bool
}

func (r *runner) calculatedProperties(v any) ([]calculated, error) {
	var props []calculated
	for _, p := range asList(v) {
		switch x := norm(p).(type) {
		case nil:
		case *ScriptBlockValue:
			props = append(props, calculated{name: x.String(), expr: x})
		case *Hashtable:
			var c calculated
			for _, k := range x.Keys() {
				val, _ := x.Get(k)
				switch strings.ToLower(toString(k)) {
				case "n", "name", "l", "label":
					c.name = toString(val)
				case "e", "expression":
					if sb, ok := scriptBlockArg(val); ok {
						c.expr = sb
						if c.name == "" {
							c.name = sb.String()
						}
					} else {
						c.name = toString(val)
					}
				case "descending":
					d := toBool(val)
					c.descending = &d
				case "ascending":
					d := !toBool(val)
					c.descending = &d
				default:
					return nil, newError(nil, ErrCodeParameterBinding,
						"The %s key is not valid.", toString(k))
				}
			}
			props = append(props, c)
		default:
			props = append(props, calculated{name: toString(x)})
		}
	}
	return props, nil
}

func (r *runner) propertyValue(item any, c calculated) (any, error) {
	if c.expr == nil {
		return r.getMember(item, c.name)
	}
	res, err := r.invokeBlock(c.expr.Body, nil, invocation{dollarUnder: item, hasUnder: true, dot: true})
	if err != nil {
		return nil, err
	}
	return norm(collapse(res)), nil
}

// propertyNames lists the properties of a hashtable or custom object, used
// to expand Select-Object *.
func propertyNames(item any) []string {
	switch x := norm(item).(type) {
	case *script.CustomObject:
		return x.Names()
	case *Hashtable:
		keys := x.Keys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = toString(k)
		}
		return names
	}
	return nil
}

func selectObject(r *runner, inv invocation, b boundArgs) ([]any, error) {
	items := inputItems(inv, b)

	if b.has("Index") {
		var picked []any
		for _, i := range asList(b.get("Index")) {
			n, err := toInt(i)
			if err != nil {
				return nil, err
			}
			if n >= 0 && n < len(items) {
				picked = append(picked, items[n])
			}
		}
		items = picked
	}
	if b.has("Skip") {
		n, err := toInt(b.get("Skip"))
		if err != nil {
			return nil, err
		}
		items = items[min(max(n, 0), len(items)):]
	}
	if b.has("First") || b.has("Last") {
		var head, tail []any
		if b.has("First") {
			n, err := toInt(b.get("First"))
			if err != nil {
				return nil, err
			}
			head = items[:min(max(n, 0), len(items))]
		}
		if b.has("Last") {
			n, err := toInt(b.get("Last"))
			if err != nil {
				return nil, err
			}
			tail = items[len(items)-min(max(n, 0), len(items)):]
		}
		items = append(append([]any(nil), head...), tail...)
	}

	props, err := r.calculatedProperties(b.get("Property"))
	if err != nil {
		return nil, err
	}
	var out []any
	for _, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		if b.has("ExpandProperty") {
			v, err := r.getMember(item, toString(b.get("ExpandProperty")))
			if err != nil {
				return nil, err
			}
			out = append(out, enumerate(v)...)
			continue
		}
		if len(props) == 0 {
			out = append(out, item)
			continue
		}
		o := script.NewCustomObject()
		for _, p := range props {
			if p.expr == nil && strings.Contains(p.name, "*") {
				re, err := r.wildcard(p.name, false)
				if err != nil {
					return nil, err
				}
				for _, name := range propertyNames(item) {
					if re.MatchString(name) {
						v, _ := r.getMember(item, name)
						o.Set(name, v)
					}
				}
				continue
			}
			v, err := r.propertyValue(item, p)
			if err != nil {
				return nil, err
			}
			o.Set(p.name, v)
		}
		out = append(out, o)
	}

	if b.flag("Unique") {
		var uniq []any
		for _, v := range out {
			if !r.containsValue(uniq, v, true) {
				uniq = append(uniq, v)
			}
		}
		out = uniq
	}
	return out, nil
}

func sortObject(r *runner, inv invocation, b boundArgs) ([]any, error) {
	items := append([]any(nil), inputItems(inv, b)...)
	props, err := r.calculatedProperties(b.get("Property"))
	if err != nil {
		return nil, err
	}
	cs := b.flag("CaseSensitive")
	desc := b.flag("Descending")

	keys := make([][]any, len(items))
	for i, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		if len(props) == 0 {
			keys[i] = []any{norm(item)}
			continue
		}
		keys[i] = make([]any, len(props))
		for j, p := range props {
			if keys[i][j], err = r.propertyValue(item, p); err != nil {
				return nil, err
			}
		}
	}

	cmp := func(a, c []any) int {
		for j := range a {
			d := r.sortCompare(a[j], c[j], cs)
			descending := desc
			if j < len(props) && props[j].descending != nil {
				descending = *props[j].descending
			}
			if descending {
				d = -d
			}
			if d != 0 {
				return d
			}
		}
		return 0
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return cmp(keys[idx[i]], keys[idx[j]]) < 0 })

	out := make([]any, 0, len(items))
	var last []any
	for n, i := range idx {
		if b.flag("Unique") && n > 0 && cmp(last, keys[i]) == 0 {
			continue
		}
		out = append(out, items[i])
		last = keys[i]
	}
	return out, nil
}

// sortCompare orders values that -lt cannot compare by their string form.
func (r *runner) sortCompare(a, b any, cs bool) int {
	if c, err := r.compare(a, b, cs); err == nil {
		return c
	}
	return r.collator(cs).CompareString(toString(a), toString(b))
}

func measureObject(r *runner, inv invocation, b boundArgs) ([]any, error) {
	items := inputItems(inv, b)
	prop := ""
	if b.has("Property") {
		prop = toString(b.get("Property"))
	}
	count := 0
	sum := 0.0
	var lo, hi any
	for _, item := range items {
		if err := r.step(nil); err != nil {
			return nil, err
		}
		v := item
		if prop != "" {
			var err error
			if v, err = r.getMember(item, prop); err != nil {
				return nil, err
			}
			if norm(v) == nil {
				continue
			}
		}
		count++
		if b.flag("Sum") || b.flag("Average") {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			sum += f
		}
		if b.flag("Maximum") || b.flag("Minimum") {
			if lo == nil || r.sortCompare(v, lo, false) < 0 {
				lo = norm(v)
			}
			if hi == nil || r.sortCompare(v, hi, false) > 0 {
				hi = norm(v)
			}
		}
	}

	o := script.NewCustomObject()
	o.Set("Count", count)
	o.Set("Average", nil)
	o.Set("Sum", nil)
	o.Set("Maximum", nil)
	o.Set("Minimum", nil)
	o.Set("Property", nil)
	if b.flag("Average") && count > 0 {
		o.Set("Average", sum/float64(count))
	}
	if b.flag("Sum") {
		o.Set("Sum", sum)
	}
	if b.flag("Maximum") {
		o.Set("Maximum", measureValue(hi))
	}
	if b.flag("Minimum") {
		o.Set("Minimum", measureValue(lo))
	}
	if prop != "" {
		o.Set("Property", prop)
	}
	return []any{o}, nil
}

// measureValue reports numeric extremes as doubles.
func measureValue(v any) any {
	if isNumber(v) {
		f, _ := toFloat(v)
		return f
	}
	return v
}

func writeOutput(_ *runner, inv invocation, b boundArgs) ([]any, error) {
	if !b.has("InputObject") {
		return inv.input, nil
	}
	v := b.get("InputObject")
	if b.flag("NoEnumerate") {
		return []any{v}, nil
	}
	return enumerate(v), nil
}

func getVariable(r *runner, _ invocation, b boundArgs) ([]any, error) {
	vars := r.scope.visible()
	patterns := []any{"*"}
	if b.has("Name") {
		patterns = asList(b.get("Name"))
	}
	var out []any
	for _, p := range patterns {
		name := toString(p)
		re, err := r.wildcard(name, false)
		if err != nil {
			return nil, err
		}
		found := false
		for _, nv := range vars {
			if !re.MatchString(nv.name) {
				continue
			}
			found = true
			if b.flag("ValueOnly") {
				out = append(out, nv.value)
				continue
			}
			o := script.NewCustomObject()
			o.Set("Name", nv.name)
			o.Set("Value", nv.value)
			out = append(out, o)
		}
		if !found && !strings.ContainsAny(name, "*?[") {
			return nil, newError(nil, ErrCodeRuntime, "Cannot find a variable with the name '%s'.", name)
		}
	}
	return out, nil
}

func getDate(r *runner, _ invocation, b boundArgs) ([]any, error) {
	t := r.s.clock()
	if b.has("Date") {
		var err error
		if t, err = toDateTime(b.get("Date")); err != nil {
			return nil, err
		}
	}
	parts := []struct {
		name string
		set  func(t time.Time, n int) time.Time
	}{
		{"Year", func(t time.Time, n int) time.Time { return t.AddDate(n-t.Year(), 0, 0) }},
		{"Month", func(t time.Time, n int) time.Time { return t.AddDate(0, n-int(t.Month()), 0) }},
		{"Day", func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n-t.Day()) }},
		{"Hour", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n-t.Hour()) * time.Hour) }},
		{"Minute", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n-t.Minute()) * time.Minute) }},
		{"Second", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n-t.Second()) * time.Second) }},
		{"Millisecond", func(t time.Time, n int) time.Time {
			return t.Add(time.Duration(n)*time.Millisecond - time.Duration(t.Nanosecond()/1e6)*time.Millisecond)
		}},
	}
	for _, p := range parts {
		if !b.has(p.name) {
			continue
		}
		n, err := toInt(b.get(p.name))
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxInt16 {
			return nil, newError(nil, ErrCodeParameterBinding,
				"Cannot validate argument on parameter '%s'.", p.name)
		}
		t = p.set(t, n)
	}
	if b.has("Format") {
		s, err := r.s.culture.FormatDate(t, toString(b.get("Format")))
		if err != nil {
			return nil, err
		}
		return []any{s}, nil
	}
	return []any{t}, nil
}
