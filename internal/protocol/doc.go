// Package protocol owns the RouterOS API vocabulary.
//
// Ownership boundary:
// - word kinds and their one-character text prefixes
// - sentence grouping, tags and reply classification
// - word parse errors
//
// Framing (length prefixes, byte streams) lives in protocol/frame and
// request correlation lives in protocol/session.
package protocol
