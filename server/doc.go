// Package server exposes the runner over HTTP with gorilla/mux.
//
// Routes:
//
//	POST   /runs                        start a run; streams SSE, or returns 202 with ?async=true
//	GET    /runs                        list run summaries
//	GET    /runs/{id}                   run snapshot: status, latest state, events
//	DELETE /runs/{id}                   cancel a run
//	GET    /runs/{id}/artifacts         artifact names (when an artifact store is set)
//	GET    /runs/{id}/artifacts/{name}  one markdown artifact
//	GET    /health                      liveness
//	GET    /metrics                     prometheus exposition
//
// Each SSE frame carries the event id, the event name (stage name, "complete"
// or "error") and the JSON encoded core.Event. Runs are detached from the
// request: a disconnected client stops receiving frames while the run
// continues and remains visible under /runs/{id}.
package server
