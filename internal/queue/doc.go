// Package queue holds the ordered segments of one reading session and the
// prefetch cache that synthesizes their audio ahead of playback.
package queue
