// Package model defines the approval domain: requests and their lifecycle
// statuses, inbound commands, risk assessments, transition events and the
// events published to downstream consumers.
package model
