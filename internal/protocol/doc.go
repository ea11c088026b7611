// Package protocol defines the wire shapes of the Messages-style output
// protocol: the aggregate message object, the named streaming frames and
// their server-sent-event encoding, and the structured error payload.
package protocol
