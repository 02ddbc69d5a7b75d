// Package outbox delivers published approval events that were written in the
// same transaction as the state change they describe.
//
// The dispatcher polls pending messages, groups them by approval so events of
// one request keep their commit order, and publishes the groups on a bounded
// pool. Failed deliveries are retried with exponential backoff and dead
// lettered after MaxAttempts. Delivery is at-least-once: a message published
// but not yet marked dispatched is published again on the next poll.
package outbox
