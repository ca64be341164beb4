// Package async wraps fire-and-forget goroutines with panic recovery
// and timeout enforcement.
//
// Use SafeGo instead of a bare `go func()` for side-channel work such
// as notification delivery: a panic or a hung downstream must never
// take out the request path that spawned it.
package async
