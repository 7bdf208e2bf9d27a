// Package server assembles the application: storage, session lifecycle,
// search, backup, crash recovery, the browser bridge, and the HTTP/WebSocket
// surface, with the middleware stack applied in one place.
package server
