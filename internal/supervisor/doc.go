// Package supervisor owns the lifecycle of a single local inference server
// process. It is structured into small files by concern:
//
//   - supervisor.go: Supervisor, Start/Stop/MarkIdle, state accessors.
//   - process.go: ServerProcess, output line consumers, diagnostic tail.
//   - state.go: ReadinessState and the ProcessInfo snapshot.
//   - matcher.go: ReadinessMatcher and the per-server-kind registry.
//   - events.go: lifecycle events and publishers.
//   - metrics.go: Prometheus collectors.
//
// Readiness is inferred from the server's own output: a recognised
// "listening" banner moves Loading to Ready, and error lines before that
// point fail the start. The matching is substring based and therefore tied to
// upstream banner wording; alternate servers plug in their own
// ReadinessMatcher via RegisterMatcher.
//
// At most one process is live per Supervisor. Concurrent Start calls collapse
// onto the in-flight spawn.
package supervisor
