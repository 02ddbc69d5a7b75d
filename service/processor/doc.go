// Package processor drives approval requests through their status machine.
//
// A command is shape-checked, then validated while its risk is assessed
// concurrently. The stored request is loaded with its version, the risk
// assessment and routing decision are attached, and the candidate state is
// committed with a compare-and-swap on the version together with its audit
// event and outbox messages. Approved requests are handed to the side-effect
// executor of their action after the commit.
package processor
