// Package audio holds synthesized clips and plays them.
//
// A Clip is signed 16-bit little-endian mono PCM at a known sample rate.
// The oto-backed Player streams clips through a resampling reader so that
// clips of any rate play on a single output context and the playback rate
// can be changed while a clip is playing.
package audio
