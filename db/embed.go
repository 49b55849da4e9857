// Package db carries the SQL schema, embedded so binaries can bootstrap
// a database without shipping migration files alongside them.
package db

import _ "embed"

// Schema holds the DDL for every storefront table and index.
//
//go:embed migrations/001_schema.sql
var Schema string
