// Package config defines the YAML settings of the last-changed service and
// provides helpers to load, validate, save and watch them.
//
// Validation covers what the interactive setup wizard used to check: the
// watched entity must belong to a supported domain and expiration_days must
// lie in 0..100. Sensors never re-validate their configuration.
package config
