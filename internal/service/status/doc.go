// Package status implements the status command: it queries the read API of a
// running server and prints the sensors as YAML.
package status
