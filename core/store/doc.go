// Package store talks to the clinical database through its HTTP SQL proxy.
//
// The proxy accepts parameterized statements on /tools/execute_sql and
// insert-or-update requests on /upsert_data. Every helper in this package
// passes values through named parameters; no caller-supplied data is ever
// spliced into SQL text. Dates cross the wire in the database's native
// DD.MM.YYYY form, converted at this boundary only.
package store
