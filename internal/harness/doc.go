// Package harness runs conformance scenarios for filter compilation.
//
// A scenario imports a fixture catalog into an in-memory database and runs
// a list of searches through the search service. Each step states what the
// compiler and the catalog must produce: the lambda, fragments of the SQL,
// the parameters, the result names, or the class of error.
//
// # Scenario Format
//
//	name: by_author
//	description: "Filters on a string property"
//	catalog: ../../../catalog/testdata/extensions.yaml
//	variables:
//	  me: urasandesu
//	steps:
//	  - name: equality
//	    where: "$gall.Author -eq $me"
//	    expect:
//	      lambda: 'gall => (gall.Author == "urasandesu")'
//	      sql_contains: ["WHERE author = ?"]
//	      params: [urasandesu]
//	      results: [Prig, Gall]
//	  - name: wildcard
//	    where: "$gall.Name -like 'G*'"
//	    expect:
//	      error: unsupported
//
// # Error Classes
//
//   - syntax: the script does not parse
//   - unsupported: a construct outside the accepted subset
//   - type_mismatch: operand types an operator rejects
//   - evaluation: the script host failed while folding a constant
//   - invalid_request: conflicting sort scripts or negative paging
//
// # Deterministic Testing
//
// Entries get sequential IDs in fixture order and the host clock is a
// testutil.DeterministicClock, so a run's snapshot is stable and can be
// compared against a golden file with RunWithGolden.
package harness
