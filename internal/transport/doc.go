// Package transport spawns tool-server child processes and frames
// newline-delimited JSON messages over their standard streams.
package transport
