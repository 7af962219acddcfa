// Package checkpoint provides core.CheckpointStore implementations for
// suspending and resuming orchestrations across process boundaries.
//
// Tokens are ULIDs, so they sort by creation time. Both stores enforce the
// single-use contract: loading a checkpoint consumes it, and a second load
// with the same token fails with core.ErrStaleCheckpoint.
package checkpoint
