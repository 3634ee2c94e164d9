// Package presence implements the in-memory coordinator behind talkrooms.
//
// It tracks which connections are online, which rooms they sit in and what
// mood they advertise, fans room-scoped events out to members, and pairs
// anonymous strangers into private rooms. All state lives in process memory
// for the lifetime of the connections that created it.
//
// The Controller is the only type that mutates shared state. Transports feed
// it Connect, Handle and Disconnect calls and receive outbound frames through
// the Deliverer interface.
package presence
