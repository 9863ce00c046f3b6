// Package util provides small data structures shared by the client packages.
//
// Key Components:
//
//   - ExpiryHeap: a keyed min-heap ordered by deadline. The protocol layer schedules
//     every finished but unclaimed request result in it and drops the results whose
//     deadline passed, so abandoned requests never accumulate.
package util
