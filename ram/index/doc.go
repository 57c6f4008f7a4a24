// Package index encodes and decodes the snapshot RAM page index.
//
// # Layout
//
// The snapshot starts (at a caller-chosen position) with an 8-byte big-endian
// absolute offset of the index section. At that offset:
//
//	int32   version (always 1)
//	int32   number of nonzero pages across all blocks
//	per block, in registration order:
//	  u8      name length
//	  []byte  name
//	  int32   zero-page count
//	          [int32 first page index, (count-1) index deltas]
//	  int32   nonzero-page count
//	          [int32 first page index, int64 first file position,
//	           (count-1) x (index delta, position delta in pages)]
//
// All fixed-width integers are big-endian. Deltas use the packed signed codec
// implemented by ReadDelta and PutDelta.
//
// # Delta codec
//
// Page lists are mostly ascending, so deltas are usually small positive
// numbers. A delta is one packed unsigned integer when it is nonzero and
// positive. A packed zero is an escape: the next packed integer is the
// magnitude of a negative (or zero) delta.
//
//	+5  -> 05
//	-3  -> 00 03
//	 0  -> 00 00
//
// Decode only describes the index; Build applies it to guest memory by zeroing
// zero pages and producing the flat ram.FileIndex page array.
package index
