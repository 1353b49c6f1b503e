package evo

// Evolvable is the capability every individual must provide. T is normally a
// pointer type so that Mutate can change the value in place.
type Evolvable[T any] interface {
	// CrossOver returns a new individual combining the receiver with other.
	// It must not modify either parent.
	CrossOver(other T) T
	// Mutate slightly changes the individual in place.
	Mutate()
}
