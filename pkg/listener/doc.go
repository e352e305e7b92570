// Package listener runs one HTTP listener per actor module and bridges every
// request it accepts to the module through a dispatch.Handle.
//
// The Manager owns a Registry keyed by module id. Start binds the address
// synchronously, registers the listener and serves it on its own goroutine;
// Stop shuts it down gracefully, waits for the serve loop to exit and evicts
// it. Lifecycle calls for the same module are serialized; calls for different
// modules never wait on each other, and the registry lock is only held for
// map mutation.
//
// Each listener's handler turns the wire request into a codec.Request, calls
// the module's HandleRequest operation and writes back the codec.Response.
// Any failure along that path becomes a 500 with a fixed body and never
// affects the listener itself.
package listener
