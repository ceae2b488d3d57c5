// Package sensor contains the core domain types of a last-changed sensor.
//
// TrackedState is the per-sensor state mutated by the change tracker and the
// expiration scheduler. Snapshot is its durable slot record, and the slug
// helpers derive sensor ids from display names.
package sensor
