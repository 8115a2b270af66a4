// Package rate provides the in-memory sliding-window limiter that throttles
// inbound messages per user.
//
// # Window semantics
//
// True sliding window: each check prunes instants older than now-window and
// compares the remainder against the budget. A denied check is not recorded.
// State lives for the process lifetime only; a restart clears every window.
//
// # What this package must NOT do
//
//   - Act as a security boundary. The bound is soft by design; the engine
//     treats a denial as a polite "try again later", never as enforcement
//     against a determined attacker.
//   - Hold its lock across anything that blocks.
package rate
