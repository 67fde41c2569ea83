package actionpipe

// Pool multiplexes events over per-statement queues.
type Pool interface {
	Append(events []Event) error
	Push(event Event) error
	Eject(limit int) (events []Event, err error)
}
