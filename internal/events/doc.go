// Package events provides the in-process topic bus that carries lifecycle
// notifications to the job trigger path.
//
// Publishers never block: events are buffered and dispatched by a single
// goroutine started with Run. Subscribers therefore execute sequentially on
// that goroutine, which is the daemon's internal event-listener thread.
package events
