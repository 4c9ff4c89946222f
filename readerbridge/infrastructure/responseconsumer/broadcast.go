// Package responseconsumer fans tracker responses out to independent
// consumers: logging and the retry-after pause.
package responseconsumer

// Broadcast reads from source and offers every value to each consumer. Slow
// consumers miss values instead of blocking the others. When source is
// closed, every consumer channel is closed and the number of missed
// deliveries is returned.
func Broadcast[T any](source <-chan T, consumers ...chan<- T) uint64 {
	var missed uint64
	for data := range source {
		for _, consumer := range consumers {
			select {
			case consumer <- data:
			default:
				missed++
			}
		}
	}

	for _, consumer := range consumers {
		close(consumer)
	}
	return missed
}
