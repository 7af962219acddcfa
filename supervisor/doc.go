// Package supervisor implements hierarchical delegation: a router that runs
// the orchestration pattern one level up, where the "tools" are entire
// sub-agents. Each hop classifies the shared conversation to exactly one
// sub-agent (or FINISH), runs that agent's loop over the shared history, and
// folds its output back before the next classification.
//
// A suspension inside a sub-agent propagates to the supervisor's caller; the
// checkpoint records which sub-agent owns the pending question so resumption
// is dispatched directly, never re-classified.
package supervisor
