/*
Package metrics defines and registers Kiln's Prometheus metrics.

All metrics register with the default registry at package init and are
exposed through Handler on /metrics. Run metrics are updated by the
orchestrator, API metrics by the HTTP middleware, storage metrics by the
blob store's callers.
*/
package metrics
