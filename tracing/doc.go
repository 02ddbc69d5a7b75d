// Package tracing wraps OpenTelemetry so the approval engine can open spans
// around commands, validation, risk scoring and commits without importing
// the upstream packages directly.
package tracing
