// Package agent implements the orchestration loop: a synchronous state
// machine that drives a conversation through gateway decisions and tool
// executions until a final answer, a human-in-the-loop suspension, or a
// failure terminal state.
//
// A Loop is built from an explicit Config (instructions, tool registry,
// gateway, iteration cap) composed rather than inherited. Loops hold no
// per-conversation state themselves and are safe to share across
// concurrently running conversations.
package agent
