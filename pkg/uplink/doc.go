// Package uplink streams PCM16 chunks to a remote speech service over websocket.
//
// It negotiates audio parameters with a hello exchange, frames audio with the
// v1/v2/v3 binary codec, optionally Opus-encodes chunks, reconnects with
// exponential backoff and reports transcripts through callbacks.
//
// Opus frames are cut across chunk boundaries: samples that do not fill a
// frame are held until the next chunk, and Client.Flush sends the remainder
// zero padded at end of capture.
package uplink
