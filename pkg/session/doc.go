// Package session ties a coordinator and a checkpoint recorder together
// into the single object an embedder starts and stops: it owns the
// measurement lifecycle, accumulates per-thread checkpoint logs, and
// turns both into a correlated, deterministic result.
package session
