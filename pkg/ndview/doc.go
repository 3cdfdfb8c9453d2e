// Package ndview layers typed, shaped, ordered array access over the raw
// data region of an ismblob segment.
//
// The element type, dimensions, and memory order travel with the segment
// itself: [New] encodes them into the metadata blob as a JSON triple such
// as ["<f8",[480,640],"C"], and [Open] decodes the triple back, so any
// process that can name the segment reconstructs the same view without
// out-of-band coordination.
//
// Element access is positional ([Array.Offset] into [Array.Bytes]) or
// typed ([DataOf], which reinterprets the shared bytes as a Go slice).
package ndview
