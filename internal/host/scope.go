package host

import (
	"os"
	"sort"
	"strings"

	"github.com/roach88/gall/internal/script"
)

// scope holds variables and functions. Lookups walk outward; assignments
// land in the innermost scope, as in the shell.
type scope struct {
	parent *scope
	vars   map[string]any
	names  map[string]string // lower-cased name to the spelling first assigned
	funcs  map[string]*function
}

func newScope(parent *scope) *scope {
	return &scope{
		parent: parent,
		vars:   make(map[string]any),
		names:  make(map[string]string),
		funcs:  make(map[string]*function),
	}
}

func (sc *scope) get(lname string) (any, bool) {
	for s := sc; s != nil; s = s.parent {
		if v, ok := s.vars[lname]; ok {
			return v, true
		}
	}
	return nil, false
}

func (sc *scope) set(name string, v any) {
	lname := strings.ToLower(name)
	if _, ok := sc.names[lname]; !ok {
		sc.names[lname] = name
	}
	sc.vars[lname] = v
}

func (sc *scope) lookupFunc(lname string) (*function, bool) {
	for s := sc; s != nil; s = s.parent {
		if f, ok := s.funcs[lname]; ok {
			return f, true
		}
	}
	return nil, false
}

// visible returns every variable reachable from sc, sorted by name. Inner
// scopes shadow outer ones.
func (sc *scope) visible() []namedValue {
	seen := map[string]bool{}
	var out []namedValue
	for s := sc; s != nil; s = s.parent {
		for lname, v := range s.vars {
			if seen[lname] {
				continue
			}
			seen[lname] = true
			out = append(out, namedValue{name: s.names[lname], value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].name) < strings.ToLower(out[j].name)
	})
	return out
}

type namedValue struct {
	name  string
	value any
}

// function is a user-defined function or filter.
type function struct {
	name   string
	filter bool
	params []*script.Parameter
	body   *script.ScriptBlock
}

var readOnlyVariables = map[string]bool{"true": true, "false": true, "null": true}

func (r *runner) readVariable(v *script.Variable) (any, error) {
	name := v.UnqualifiedName()
	lname := strings.ToLower(name)
	switch strings.ToLower(v.Scope()) {
	case "env":
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil, nil
		}
		return val, nil
	case "global", "script":
		val, _ := r.root.get(lname)
		return val, nil
	case "", "local", "private", "variable":
	default:
		return nil, nil
	}
	switch lname {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	case "?":
		return true, nil
	case "psculture":
		return r.s.culture.Name, nil
	case "psitem":
		lname = "_"
	}
	val, _ := r.scope.get(lname)
	return val, nil
}

func (r *runner) writeVariable(v *script.Variable, val any) error {
	name := v.UnqualifiedName()
	if readOnlyVariables[strings.ToLower(name)] {
		return newError(v, ErrCodeRuntime,
			"Cannot overwrite variable %s because it is read-only or constant.", name)
	}
	if val == script.AutomationNull {
		val = nil
	}
	switch strings.ToLower(v.Scope()) {
	case "global", "script":
		r.root.set(name, val)
	case "env":
		return newError(v, ErrCodeRuntime, "Environment variables cannot be set from a filter script.")
	default:
		r.scope.set(name, val)
	}
	return nil
}
