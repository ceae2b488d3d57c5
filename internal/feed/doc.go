// Package feed defines the state-change event feed sensors subscribe to.
//
// Events travel as Home Assistant style state_changed JSON documents. The
// nats subpackage implements Feed on top of NATS subjects; Bus is an
// in-process implementation.
package feed
