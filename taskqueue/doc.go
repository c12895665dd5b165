/*
Package taskqueue provides asynchronous task execution with pluggable
persistence. Handlers are registered by name; enqueueing returns a task
ID that can be polled for pending/running/finished/error state. Task
records survive process restarts when the Redis store is used.
*/
package taskqueue
