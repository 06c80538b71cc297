// Package pointing holds the local view of planning-poker sessions.
//
// Inbound server events go through Reduce, a pure (State, Event) -> State function.
// User intents go through Decide, a pure (State, Command) -> (State, effects) function
// whose effects are outbound socket messages. Store wraps both with a mutex, a sender
// and per-session subscriptions that deliver Session values.
package pointing
