/*
Package api implements Kiln's HTTP surface.

Routes:

	GET  /v1/health               liveness probe (public; /healthz is an alias)
	GET  /metrics                 Prometheus exposition (public)
	GET  /v1/files/{id}           signed download (signature is the credential)
	POST /v1/files                upload one multipart file
	POST /v1/runs                 execute synchronously, return the record
	GET  /v1/runs/{id}            fetch a finished run record
	POST /v1/runs/stream          start a run, return its id immediately
	GET  /v1/runs/{id}/stream     websocket frame stream for a started run

Everything below /v1 except health and downloads requires a bearer token;
each authenticated request passes the tenant's token bucket. Kinded
errors map to HTTP statuses with the kind in the error field; unkinded
errors are internal and never leak their message.
*/
package api
