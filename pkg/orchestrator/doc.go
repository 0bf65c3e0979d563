/*
Package orchestrator runs the execution pipeline: admission checks, limit
resolution, input staging, sandbox launch, result classification, artifact
ingestion, usage accounting, and workdir cleanup.

The pipeline is synchronous per run. A run that executes user code to any
outcome produces a RunRecord; only infrastructure failures (staging errors,
sandbox launch failures) surface as errors to the caller. Workdirs are
always removed before the record becomes retrievable.
*/
package orchestrator
