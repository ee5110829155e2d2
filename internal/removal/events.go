package removal

// Event is a message sent by the worker to the controller. Every event carries the
// ID of the batch that produced it.
type Event interface {
	Batch() string
}

// Progress reports the batch completion percentage, 0 to 100.
type Progress struct {
	BatchID string
	Percent int
}

// ItemDone reports one input that was processed and saved.
type ItemDone struct {
	BatchID string
	Index   int
	Input   string
	Output  string
	Format  string
	Bytes   int64
}

// Failed reports the item that stopped the batch.
type Failed struct {
	BatchID string
	Index   int
	Input   string
	Err     error
}

// Done reports that every item of the batch succeeded.
type Done struct {
	BatchID string
	Outputs []string
}

func (e Progress) Batch() string { return e.BatchID }
func (e ItemDone) Batch() string { return e.BatchID }
func (e Failed) Batch() string   { return e.BatchID }
func (e Done) Batch() string     { return e.BatchID }
