// Package engine is the memory-access instrumentation engine: it owns
// the region store, dispatches observed accesses against it, applies
// protection-flag mutations, decodes client requests and prints the
// shutdown report.
//
// The engine is single-threaded by contract: the host framework
// serialises all guest threads into one event stream, and every public
// operation runs to completion on the calling goroutine.
package engine
