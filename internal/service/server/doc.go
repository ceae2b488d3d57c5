// Package server runs the configured sensors: it connects the NATS feed, opens
// the snapshot storage, starts the sensors and serves the read API and
// metrics until the context is canceled.
package server
