// Package validation runs the independent checks that gate every approval
// command. Checks run concurrently on a bounded pool and the pipeline waits
// for all of them; a command proceeds only when every check passed.
//
// Business rules and the risk ceiling apply only to commands that let the
// action take effect: submissions and approvals. Admin permission and resource
// existence apply to every command.
package validation
