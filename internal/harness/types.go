package harness

// StepResult is what one step produced.
type StepResult struct {
	Name        string   `json:"name"`
	Lambda      string   `json:"lambda,omitempty"`
	OrderLambda string   `json:"order_lambda,omitempty"`
	SQL         string   `json:"sql,omitempty"`
	Params      []any    `json:"params,omitempty"`
	Results     []string `json:"results"`

	// ErrorClass and Error are set when the step failed.
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
