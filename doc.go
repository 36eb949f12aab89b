// Package miniredis implements a miniature, RESP-compatible in-memory
// key/value store: a frame codec, a buffered connection, a shared store with
// expiration and pub/sub, a bounded-concurrency TCP server, and a symmetric
// client. See server/ and client/ for the command-line entry points built on
// top of this package.
package miniredis

// DefaultPort is the port the server binds to and the client dials when
// none is given on the command line.
const DefaultPort = 6379
