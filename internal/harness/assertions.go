package harness

import (
	"fmt"
	"reflect"
	"strings"
)

// AssertionError describes one expectation that did not hold.
type AssertionError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s:\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// CheckStep compares a step result with the step's expectations and
// returns one message per failed expectation.
func CheckStep(step Step, sr StepResult) []string {
	var errs []string
	fail := func(err *AssertionError) {
		errs = append(errs, err.Error())
	}
	exp := step.Expect

	if exp.Error != "" || sr.ErrorClass != "" {
		if exp.Error != sr.ErrorClass {
			fail(&AssertionError{
				Field:    "error",
				Expected: orNone(exp.Error),
				Actual:   orNone(strings.TrimSpace(sr.ErrorClass + " " + sr.Error)),
			})
		}
		return errs
	}

	if exp.Lambda != "" && exp.Lambda != sr.Lambda {
		fail(&AssertionError{Field: "lambda", Expected: exp.Lambda, Actual: sr.Lambda})
	}
	if exp.OrderLambda != "" && exp.OrderLambda != sr.OrderLambda {
		fail(&AssertionError{Field: "order_lambda", Expected: exp.OrderLambda, Actual: sr.OrderLambda})
	}
	for _, frag := range exp.SQLContains {
		if !strings.Contains(sr.SQL, frag) {
			fail(&AssertionError{Field: "sql", Expected: "contains " + frag, Actual: sr.SQL})
		}
	}
	if exp.Params != nil && !paramsEqual(exp.Params, sr.Params) {
		fail(&AssertionError{Field: "params", Expected: fmt.Sprintf("%v", exp.Params), Actual: fmt.Sprintf("%v", sr.Params)})
	}
	if exp.Results != nil && !reflect.DeepEqual(exp.Results, sr.Results) {
		fail(&AssertionError{Field: "results", Expected: fmt.Sprintf("%q", exp.Results), Actual: fmt.Sprintf("%q", sr.Results)})
	}
	if exp.Count != nil && *exp.Count != len(sr.Results) {
		fail(&AssertionError{Field: "count", Expected: fmt.Sprint(*exp.Count), Actual: fmt.Sprint(len(sr.Results))})
	}
	return errs
}

// paramsEqual compares YAML-decoded expectations with SQL parameters.
// YAML integers decode as int; parameters carry int64.
func paramsEqual(want, got []any) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		w := want[i]
		if n, ok := w.(int); ok {
			w = int64(n)
		}
		if !reflect.DeepEqual(w, got[i]) {
			return false
		}
	}
	return true
}

func orNone(s string) string {
	if s == "" {
		return "no error"
	}
	return s
}
