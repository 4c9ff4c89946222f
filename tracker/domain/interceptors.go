package domain

// Interceptor inspects or rejects a message of type K. Returning an error
// halts the chain.
type Interceptor[K any] interface {
	Apply(msg *K) error
}

// Interceptors applies a list of interceptors in order.
type Interceptors[K any] struct {
	Interceptors []Interceptor[K]
}

// Apply runs every interceptor on msg and stops at the first error.
// A nil chain accepts everything.
func (i *Interceptors[K]) Apply(msg *K) error {
	if i == nil {
		return nil
	}
	for _, interceptor := range i.Interceptors {
		if err := interceptor.Apply(msg); err != nil {
			return err
		}
	}

	return nil
}

// WithInterceptors creates a chain from the given interceptors.
// Example usage:
//
//	chain := WithInterceptors[TagObservation](
//	    NewAntennaFilter([]AntennaID{1, 2}),
//	    NewRSSIFloorFilter(-80),
//	)
//	err := chain.Apply(&obs)
func WithInterceptors[K any](interceptors ...Interceptor[K]) *Interceptors[K] {
	return &Interceptors[K]{Interceptors: interceptors}
}
