// Package cache keeps synthesized clips on disk across runs. Entries are
// keyed by voice and text, so a clip is never served for the wrong voice.
package cache
