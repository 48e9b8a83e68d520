// Package search runs catalog searches described by filter and sort
// scripts.
//
// A Request carries the script text a user typed. Plan compiles each
// script once against catalog.Entry, lowers the result to SQL, and Search
// runs the statement. Compile errors are returned as they are, so callers
// can tell a syntax error from an unsupported construct.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/compiler"
	"github.com/roach88/gall/internal/queryexpr"
	"github.com/roach88/gall/internal/querysql"
)

// ErrConflictingOrder is returned when a request sets both OrderBy and
// OrderByDescending.
var ErrConflictingOrder = errors.New("OrderBy and OrderByDescending cannot both be set")

// Querier runs a SELECT built by querysql. *catalog.Catalog implements it.
type Querier interface {
	Query(ctx context.Context, query string, params ...any) ([]catalog.Entry, error)
}

// Request describes one search. Empty scripts and nil pointers are
// omitted.
type Request struct {
	SearchText        string
	Where             string
	OrderBy           string
	OrderByDescending string
	Skip              *int
	Take              *int
}

// Plan is a compiled request.
type Plan struct {
	Where      *queryexpr.Lambda
	OrderBy    *queryexpr.Lambda
	Descending bool
	SQL        string
	Params     []any
}

// Service compiles and runs searches.
type Service struct {
	catalog   Querier
	ev        compiler.Evaluator
	sql       *querysql.SQLCompiler
	paramName string
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithParameterName sets the variable scripts use for the entry.
//
// Default: compiler.DefaultParameterName
func WithParameterName(name string) Option {
	return func(s *Service) {
		s.paramName = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithSQLCompiler replaces the lowering, for a catalog with a different
// table or column layout.
//
// Default: catalog.NewSQLCompiler()
func WithSQLCompiler(c *querysql.SQLCompiler) Option {
	return func(s *Service) {
		s.sql = c
	}
}

// New creates a Service that queries cat and folds constants with ev.
func New(cat Querier, ev compiler.Evaluator, opts ...Option) *Service {
	s := &Service{
		catalog:   cat,
		ev:        ev,
		sql:       catalog.NewSQLCompiler(),
		paramName: compiler.DefaultParameterName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan compiles the scripts of req and lowers them to SQL.
func (s *Service) Plan(req Request) (*Plan, error) {
	if req.OrderBy != "" && req.OrderByDescending != "" {
		return nil, ErrConflictingOrder
	}
	copts := []compiler.Option{
		compiler.WithParameterName(s.paramName),
		compiler.WithLogger(s.logger),
	}

	p := &Plan{}
	if req.Where != "" {
		l, err := compiler.CompilePredicate[catalog.Entry](s.ev, req.Where, copts...)
		if err != nil {
			return nil, err
		}
		p.Where = l
	}

	order := req.OrderBy
	if req.OrderByDescending != "" {
		order, p.Descending = req.OrderByDescending, true
	}
	if order != "" {
		l, err := compiler.CompileSelector[catalog.Entry](s.ev, order, copts...)
		if err != nil {
			return nil, err
		}
		p.OrderBy = l
	}

	sql, params, err := s.sql.CompileSearch(querysql.SearchQuery{
		Text:       req.SearchText,
		Where:      p.Where,
		OrderBy:    p.OrderBy,
		Descending: p.Descending,
		Skip:       req.Skip,
		Take:       req.Take,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	p.SQL, p.Params = sql, params
	return p, nil
}

// Search plans req and runs it against the catalog.
func (s *Service) Search(ctx context.Context, req Request) ([]catalog.Entry, error) {
	p, err := s.Plan(req)
	if err != nil {
		return nil, err
	}
	entries, err := s.catalog.Query(ctx, p.SQL, p.Params...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	s.logger.Debug("search: done", "where", req.Where, "results", len(entries))
	return entries, nil
}
