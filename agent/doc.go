/*
Package agent defines the streaming agent contract the runtime hosts.

An Agent consumes the composed message context and emits messages on a
channel: zero or more in-progress delta messages followed by completed
messages. The engine wraps these into the response event protocol.
*/
package agent
