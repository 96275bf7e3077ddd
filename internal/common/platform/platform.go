// Package platform holds the adapters that pull raw reviews from external
// review platforms.
package platform

import (
	"context"
	"fmt"

	"review-workers/internal/models"
)

// Credentials is the opaque material stored on an Integration.
type Credentials struct {
	Token string
}

// Page is one platform response. An empty NextPageToken ends the listing.
type Page struct {
	Reviews       []models.RawReview
	NextPageToken string
}

// Client is implemented once per review platform.
type Client interface {
	Name() string
	// FetchPage returns one page of reviews for the platform-side location ref.
	FetchPage(ctx context.Context, creds Credentials, ref, pageToken string) (*Page, error)
}

// Registry resolves platform names to clients.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unsupported review platform %q", name)
	}
	return c, nil
}

// Names lists the registered platforms.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
