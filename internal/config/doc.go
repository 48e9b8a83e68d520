// Package config loads gall.cue, the CUE configuration file of the gall
// command.
//
// The file is unified with an embedded schema (schema.cue) that supplies a
// default for every field:
//
//	database:  "extensions.db"
//	parameter: "ext"
//	culture:   "de-DE"
//	variables: {
//		me:      "urasandesu"
//		minimum: 4.5
//	}
//
// Unknown fields, and values outside the schema, are errors with the CUE
// source position attached.
package config
