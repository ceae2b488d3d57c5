// Package metrics exposes sensor activity as Prometheus metrics.
package metrics
