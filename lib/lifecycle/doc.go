// Package lifecycle tracks the in-flight work of a server so shutdown can wait for it.
//
// A Registry counts active tasks. Work started through Go runs on a tracked goroutine,
// work that is not owned by a goroutine of its own (an HTTP handler, an inline request)
// takes a token with Acquire and returns it when done. Once Drain was called, both
// refuse new work with ErrDraining and Drain blocks until the count reaches zero.
//
// The process signal handler never tears anything down itself: it only cancels a
// context, and the owner of the Registry performs the ordered shutdown.
package lifecycle
