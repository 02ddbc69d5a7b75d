// Package transition holds the approval status machine. Every function is
// pure: it never touches storage, so callers may evaluate a transition
// speculatively and discard the result.
package transition
