// Package coordinator drives multi-provider sampling at a fixed cadence:
// temporal alignment, cross-validation, disjoint aggregation, optional
// EMA filtering and 3σ outlier flagging, a circular sample buffer, and a
// provider health monitor that restarts a provider after 3 consecutive
// read failures. See spec §4.F for the full state machine.
package coordinator
