/*
Package a2a exposes the hosted agent over the Agent-to-Agent protocol.

The adapter serves an agent card for discovery and a JSON-RPC 2.0
endpoint with the message/send and message/stream methods. Streaming
responses are delivered as server-sent events where every frame is a
JSON-RPC response carrying one runtime event.
*/
package a2a
