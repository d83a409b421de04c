// Package lifecycle drives comics and pages through their persisted
// lifecycle states.
//
// A Handler owns the transition table for one entity kind. FireEvent is the
// only sanctioned way to change an entity's state: it validates the event
// against the current state, persists the entity, and then invokes every
// registered listener synchronously and in registration order. Failures at
// any step are logged and never returned to the caller.
package lifecycle
