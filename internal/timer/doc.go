// Package timer provides point-in-time callbacks with cancel handles.
//
// Scheduler backs them with gocron one-time jobs; a cancelled or fired handle
// can be called again safely.
package timer
