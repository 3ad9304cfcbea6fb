// Package session houses concrete implementations of core.RunStore. The
// interface itself (and the RunRecord struct) live in the core package so
// higher level packages (runner, server) do not depend on concrete storage.
//
// Add additional backends in sub-packages without changing any calling code;
// only the wiring layer decides which implementation to instantiate.
package session
