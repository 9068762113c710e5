// Package security derives a configuration posture report from plain
// values. It has no dependency on the engine so the report rules can be
// tested in isolation.
package security
