// Package natsfeed implements feed.Feed over plain NATS subjects.
package natsfeed
