// Package analytics aggregates approval history for reporting.
//
// Reports are computed from the approval records and the transition log and
// cached under keys aligned to a fixed time bucket. The read side tolerates
// staleness and never takes part in the command path: a failing cache only
// costs a recomputation.
package analytics
