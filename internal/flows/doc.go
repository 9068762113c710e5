// Package flows contains the orchestration for every Engine operation.
//
// Each Run* function takes a typed dependency struct of function fields and
// returns a result carrying an [Outcome]. Flows never touch Redis, SQLite or
// HTTP directly, and never import goGate; the Engine owns the resources,
// wires them into the deps and maps outcomes to its public error kinds.
package flows
