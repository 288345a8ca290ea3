package registry

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithMaxSessionsPerTopic sets the [BACKPRESSURE] threshold: how many
// concurrent sessions a single topic may hold. Zero disables the limit.
func WithMaxSessionsPerTopic(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.config.maxPerTopic = n
		}
	}
}
