// Package core provides the foundational domain types used by agentloop.
// It defines the core abstractions for:
//
//   - Turns (immutable conversation records: user input, assistant output,
//     tool-call requests and tool results)
//   - Conversations (append-only turn history plus lifecycle status)
//   - Checkpoints (serializable suspension snapshots for human-in-the-loop)
//   - The pluggable CheckpointStore contract
//
// The package intentionally keeps implementation concerns (gateways, tool
// execution, loop orchestration) out of scope, exposing small types and
// interfaces to enable custom backends and extensions.
package core
