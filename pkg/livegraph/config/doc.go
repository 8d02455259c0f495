/*
Package config reads livegraph configuration files.

# Accessors

Config wraps decoded YAML or JSON and hands out typed values with defaults.
Keys may be dotted paths into nested maps:

	cfg, err := config.FromFile("livegraph.yaml")
	if err != nil {
	    return err
	}
	workers := cfg.Int("workers", 4)
	tick := cfg.Duration("tick", 16*time.Millisecond) // "16ms" or 16
	addr := cfg.String("debug.http_addr", "")

A missing key, or a value of the wrong shape, yields the default. Durations
accept ParseDuration strings or bare numbers in milliseconds.

# Settings

Settings is the fixed set of knobs the engine and the demo programs read:

	request_queue_capacity: 3
	stream_capacity: 100
	workers: 8
	log_level: debug
	metrics: prometheus      # none | otel | prometheus
	tracing: true
	http_addr: ":9090"
	result_store: results.db # or "memory", or redis://host:6379/0
	tick: 16ms

Load applies DefaultSettings for absent keys and rejects out-of-range values
with an error wrapping ErrInvalid.

# Environment

Variables prefixed with LIVEGRAPH_ override file keys of the same name, so
LIVEGRAPH_WORKERS=2 beats "workers: 8". Nested keys cannot be overridden.
*/
package config
