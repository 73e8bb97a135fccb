// Package protocol implements the request/response correlation layer of the
// tool-server wire protocol: newline-delimited JSON-RPC 2.0 frames with
// integer ids, multiplexed over a single transport.
package protocol
