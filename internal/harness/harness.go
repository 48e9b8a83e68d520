package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/text/language"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/compiler"
	"github.com/roach88/gall/internal/host"
	"github.com/roach88/gall/internal/search"
	"github.com/roach88/gall/internal/testutil"
)

// Harness runs the steps of one scenario.
type Harness struct {
	catalog *catalog.Catalog
	service *search.Service
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory catalog with sequential IDs
// and a deterministic clock, so results are reproducible.
//
// Execution flow:
// 1. Create an in-memory catalog and import the fixture file
// 2. Create a host session with the scenario's culture and variables
// 3. Plan and run each step, recording lambdas, SQL and results
// 4. Check every step against its expectations
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.DiscardHandler)

	cat, err := catalog.Open(":memory:",
		catalog.WithIDGenerator(testutil.NewSequentialIDs()),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory catalog: %w", err)
	}
	defer cat.Close()

	ctx := context.Background()
	if scenario.Catalog != "" {
		if err := importFixtures(ctx, cat, scenario.Catalog); err != nil {
			return nil, err
		}
	}

	culture := language.AmericanEnglish
	if scenario.Culture != "" {
		if culture, err = language.Parse(scenario.Culture); err != nil {
			return nil, fmt.Errorf("invalid culture %q: %w", scenario.Culture, err)
		}
	}
	session := host.New(
		host.WithCulture(culture),
		host.WithClock(testutil.NewDeterministicClock().Now),
		host.WithVariables(scenario.Variables),
		host.WithLogger(logger),
	)

	param := scenario.Parameter
	if param == "" {
		param = compiler.DefaultParameterName
	}
	h := &Harness{
		catalog: cat,
		service: search.New(cat, session, search.WithParameterName(param), search.WithLogger(logger)),
		logger:  logger,
	}

	result := NewResult()
	for _, step := range scenario.Steps {
		sr := h.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		for _, msg := range CheckStep(step, sr) {
			result.AddError(fmt.Sprintf("step %s: %s", step.Name, msg))
		}
	}
	return result, nil
}

func importFixtures(ctx context.Context, cat *catalog.Catalog, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open catalog fixtures: %w", err)
	}
	defer f.Close()
	if _, err := cat.ImportYAML(ctx, f); err != nil {
		return fmt.Errorf("failed to import catalog fixtures: %w", err)
	}
	return nil
}

// runStep plans and runs one step. Failures are recorded, not returned.
func (h *Harness) runStep(ctx context.Context, step Step) StepResult {
	sr := StepResult{Name: step.Name, Results: []string{}}

	plan, err := h.service.Plan(search.Request{
		SearchText:        step.SearchText,
		Where:             step.Where,
		OrderBy:           step.OrderBy,
		OrderByDescending: step.OrderByDescending,
		Skip:              step.Skip,
		Take:              step.Take,
	})
	if err != nil {
		sr.ErrorClass, sr.Error = ErrorClass(err), err.Error()
		return sr
	}
	if plan.Where != nil {
		sr.Lambda = plan.Where.String()
	}
	if plan.OrderBy != nil {
		sr.OrderLambda = plan.OrderBy.String()
	}
	sr.SQL, sr.Params = plan.SQL, plan.Params

	entries, err := h.catalog.Query(ctx, plan.SQL, plan.Params...)
	if err != nil {
		sr.ErrorClass, sr.Error = "query", err.Error()
		return sr
	}
	for _, e := range entries {
		sr.Results = append(sr.Results, e.Name)
	}
	h.logger.Debug("harness: step done", "step", step.Name, "results", len(entries))
	return sr
}

// ErrorClass names the kind of failure err is, or "" for nil.
func ErrorClass(err error) string {
	var re *host.RuntimeError
	switch {
	case err == nil:
		return ""
	case compiler.IsSyntaxError(err):
		return ErrorSyntax
	case compiler.IsUnsupported(err):
		return ErrorUnsupported
	case compiler.IsTypeMismatch(err):
		return ErrorTypeMismatch
	case errors.As(err, &re):
		return ErrorEvaluation
	}
	return ErrorInvalidRequest
}
