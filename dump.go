package actionpipe

// Dumper is the dead-letter store for event rows that could not be published
// or spooled. Return hands back one dumped batch at a time.
type Dumper interface {
	Dump(query string, rows [][]interface{})
	Return() (exist bool, query string, rows [][]interface{})
}
