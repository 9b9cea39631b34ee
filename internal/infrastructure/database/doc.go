// Package database wraps the SQLite connection used for resolver state:
// slot overrides and cached capability query results.
//
// The wrapper owns lifecycle (open, ping, close), pragmas (WAL, busy
// timeout, foreign keys) and schema migrations embedded into the
// binary. Repositories in other packages receive the connection and
// issue their own queries.
package database
