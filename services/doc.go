/*
Package services provides the runtime's stateful service layer: session
history, long-term memory, lifecycle management and context composition.

Services share a common lifecycle contract (Start/Stop/Health) and are
assembled through a backend factory so deployments can switch between
in-memory, Redis, SQL and Mongo storage without code changes.
*/
package services
