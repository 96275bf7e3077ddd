// internal/workers/reviews/fetch-reviews/models.go
package fetchreviews

// Options narrow one fetch run.
type Options struct {
	Limit       int    // max reviews yielded; 0 uses the configured default
	ExternalRef string // overrides the integration's stored location ref
}

type Option func(*Options)

// WithLimit caps the number of reviews the stream yields.
func WithLimit(n int) Option {
	return func(o *Options) { o.Limit = n }
}

// WithExternalRef fetches a specific platform location, e.g. a Google place id.
func WithExternalRef(ref string) Option {
	return func(o *Options) { o.ExternalRef = ref }
}
