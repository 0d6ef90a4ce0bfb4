package public

import "github.com/paypro-bridge/internal/provider"

// Handler serves the public PayPro API: checkout, callbacks and polling.
type Handler struct {
	*provider.Container
}

// New creates the handler.
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
