// Package session owns one RouterOS API connection.
//
// Ownership boundary:
// - connection lifecycle (dial, reader goroutine, close)
// - tag allocation and the pending request table
// - login handshake and connection state
// - reconnect backoff helpers for callers that poll
//
// Framing is delegated to protocol/frame; callers own scheduling, retry
// and timeout policy.
package session
