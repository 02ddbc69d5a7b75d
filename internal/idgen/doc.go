// Package idgen wraps the identifier generators so that they can be stubbed
// in tests. Approval and assessment ids are random UUIDs; event and outbox ids
// are ULIDs so that they sort by creation time. It lives under `internal`
// because callers should treat identifiers as opaque strings.
package idgen
