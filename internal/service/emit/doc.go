// Package emit implements the emit command, which publishes one state_changed
// event to the feed. It is handy for testing sensors without a home automation
// hub.
package emit
