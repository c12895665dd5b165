/*
Package openai exposes the hosted agent behind an OpenAI Responses API
compatible endpoint, so off-the-shelf SDKs can talk to the runtime.

Only the conversational subset is implemented: text input, a response
object with output_text content, and the created / output_text.delta /
completed event stream.
*/
package openai
