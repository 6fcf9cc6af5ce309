package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it to release a producer whose stream is no longer wanted, such as a
// synthesis stream abandoned by a cancelled playback.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
