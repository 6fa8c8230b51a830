// Package remote coalesces concurrently submitted GraphQL requests for one
// remote schema into as few downstream calls as possible.
//
// # Windows
//
// Submissions accumulate in a coalescing window. The first submission of a
// window asks the Scheduler for exactly one flush callback; later submissions
// only append. Appending and the registration check happen under one lock.
//
// When the callback fires the coalescer drains the window and resets it under
// the same lock, then executes the drained batch with the lock released. New
// submissions therefore start a fresh window immediately and are never held
// up by an in-flight flush, and nothing submitted after the drain point can
// leak into the batch being executed.
//
// # Execution
//
// A drained batch is split by operation kind. A group with one member is
// forwarded unchanged; larger groups are merged into one composite request
// (see package merge) and the composite result is dispatched back to each
// member. Groups of one flush run concurrently and fail independently.
//
// # Completion
//
// Every submission returns a Completion that is resolved exactly once, with a
// result or an error, on every path: success, downstream failure, an
// unsupported response shape, a recovered panic, or Close. Waiting on a
// Completion honours the waiter's context without affecting co-batched
// requests.
package remote
