// Package tracker implements one last-changed sensor.
//
// ChangeTracker filters source events down to meaningful changes and records
// when they happened. ExpirationScheduler runs a check once a day at local
// noon and flips the expired flag when too many days passed without a change.
// Sensor ties both to a feed subscription and a durable slot, restoring the
// previous value on start so that restarts are invisible to readers.
//
// All handlers of one sensor run under the sensor's mutex, so the tracked
// state never sees two mutations at once.
package tracker
