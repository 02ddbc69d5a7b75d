// Package executor bridges approved requests with the services that carry out
// the privileged action (escrow release or refund, order finalization, dispute
// resolution). Executors must be idempotent: the same approval may be executed
// more than once when a command is retried.
package executor
