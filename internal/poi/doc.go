// Package poi owns the angular binning and point-of-interest selection for a
// rotating 2D range finder.
//
// Responsibilities: per-angle running averages with movement detection
// (Bin), the 360° bin table with packet statistics and the expiry sweep
// (BinTable), and the hysteresis state machine that decides which recently
// moved point is reported as the tracked target.
// Key types: Bin, BinTable, Snapshot, Params.
//
// Every query returns Snapshot values, never references into the table.
// A Snapshot with Angle < 0 carries no data.
//
// No I/O is allowed in this package; transport, storage and reporting live
// in internal/network, internal/poidb and internal/publish.
package poi
