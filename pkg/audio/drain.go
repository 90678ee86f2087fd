package audio

// Drain reads from ch until the channel is closed, discarding all values.
// The pipeline uses it after it stops consuming so that a source blocked on
// send can observe cancellation and close the channel.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
