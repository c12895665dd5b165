/*
Package app assembles the runtime's HTTP surface.

It exposes the agent behind a processing endpoint in three transports
(unary JSON, server-sent events, WebSocket), health and readiness
probes, task queue submission, and the mode-gated admin and config
endpoints. Middleware follows the usual onion: recovery, request IDs,
logging, CORS, per-IP rate limiting and Prometheus instrumentation.
*/
package app
