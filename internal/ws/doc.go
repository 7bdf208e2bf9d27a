// Package ws serves the extension's request/response message protocol over a
// WebSocket. Each request carries an operation tag and payload; each reply
// echoes the tag with the uniform {success, data?, error?} shape. Unknown
// tags get "Unknown message type"; no error ever escapes the boundary.
package ws
