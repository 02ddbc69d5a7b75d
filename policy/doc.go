// Package policy holds the risk thresholds that decide whether an approval
// proceeds normally, needs escalation or is refused outright. A policy can be
// attached to a request context to override the engine default for a single
// command.
package policy
