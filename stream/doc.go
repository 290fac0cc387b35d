// Package stream renders the agent loop's ordered event channel onto a
// caller's connection.
//
// A Presenter pulls events and hands each one to an Encoder as soon as it
// arrives, flushing after every event. Three encoders are provided:
//
//   - DataStreamEncoder: the line oriented data stream protocol understood by
//     AI SDK chat clients (0: text, 9: tool call, a: tool result, ...)
//   - SSEEncoder: server-sent events with one JSON event per frame
//   - TextEncoder: plain narrative for terminals
package stream
