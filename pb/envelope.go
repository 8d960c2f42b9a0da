package pb

// Envelope is the item type carried on the shared outbound channel: a
// ReduceResponse emitted by a Task's Driver, or the terminal end-of-window
// marker emitted by TaskSet.Close. Call failures are
// reported on the separate error channel instead (see reduceerrors),
// rather than as a third Envelope variant, since the error-drain loop is
// the sole consumer of failures and gains nothing from multiplexing them
// onto the same channel the outbound loop reads.
type Envelope struct {
	Response *ReduceResponse
}
