// Package broadcast fans job events out to live subscribers.
//
// A Broadcaster keeps a set of sinks per session id. Publishing to an id with
// no subscribers drops the event; there is no replay. Sinks that close their
// Done channel are removed automatically. Relays receive every event
// regardless of subscriptions and are used to mirror progress into Redis for
// other API replicas.
package broadcast
