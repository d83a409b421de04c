// Package options implements the layered configuration store consulted by job
// initiators and job bodies.
//
// Values stored in the database options table win over the defaults seeded
// from the TOML configuration. Every lookup goes back to the database so an
// option changed from the CLI is visible to the next scheduler tick without a
// daemon restart.
package options
