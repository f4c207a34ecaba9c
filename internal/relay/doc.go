// Package relay implements the per-deposit broadcast actors that fan status
// events out to live subscriber streams.
//
// Each deposit id is served by exactly one Actor, obtained through a
// Registry. An Actor runs a single goroutine that owns its subscriber set and
// keep-alive ticker; attach, detach, broadcast and keep-alive ticks are
// applied one at a time in the order they arrive. Writes to individual
// subscribers of one broadcast run concurrently, but the broadcast completes
// only after every write has succeeded or failed.
//
// Subscriber failures are never reported to publishers. A subscriber whose
// write fails is closed and removed. A broadcast with a terminal status
// (Success or Error) closes every subscriber and retires the actor; the next
// reference to the same deposit id gets a fresh actor.
package relay
