/*
Package engine hosts an agent behind the runtime's execution protocol.

The Runner drives one request through context composition, the agent's
message stream and history write-back, wrapping everything in a single
ordered event stream: a response envelope in the created state, then
in_progress, then every agent message, then the final envelope carrying
the collected output. Sequence numbers are assigned per stream and are
strictly increasing, so clients can detect gaps and reorder transports
that do not preserve ordering.
*/
package engine
