package actionpipe

import "encoding"

// Queue is an ordered event spool. Eject with a negative limit drains the
// queue.
type Queue interface {
	Push(event encoding.BinaryMarshaler) error
	Eject(limit int) (events []interface{}, err error)
	Len() int
}
