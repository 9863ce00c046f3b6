// Package buffer provides the cursor-based byte container used by the connection
// driver for both directions of a connection.
//
// A Buffer exposes two views over one contiguous storage region:
//
//   - Data(): the unread region between the read and the write cursor. A consumer
//     processes bytes from this view and then calls Consume(n).
//
//   - Space(): the free region after the write cursor. A producer writes bytes into
//     this view and then calls Fill(n).
//
// Both views are valid until the next mutating call (Fill, Consume, Compact, Grow).
//
// Compaction:
//
//	Consume moves the unread bytes back to the start of the storage whenever the
//	read cursor passes half of the capacity, and resets both cursors once all data
//	was consumed. A reader that keeps consuming therefore always frees writable
//	space again, even if it never drains the buffer completely.
//
// Growth:
//
//	Grow(n) enlarges the storage so that at least n bytes of free space are
//	available, bounded by the maximum capacity the buffer was created with. The
//	driver uses it when a single frame does not fit into the current capacity.
//
// Thread Safety:
//
//	A Buffer is not safe for concurrent use. The transport guards both of its
//	buffers with the connection lock.
package buffer
