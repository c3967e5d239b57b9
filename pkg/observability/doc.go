/*
Package observability provides Prometheus metrics for the arbor navigation graph.

Every component accepts an optional *Metrics. A nil *Metrics is valid and
records nothing, so metrics stay opt-in for library users.
*/
package observability
