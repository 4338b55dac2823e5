package api

import (
	"net/http"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/ashureev/careportal/internal/push"
)

type viewEvent struct {
	Type string `json:"type"`
	viewResponse
}

// StreamViews publishes every view change to hub and returns the
// GET /ws/view handler plus a function that stops publishing.
func (h *Handler) StreamViews(hub *push.Hub, originPatterns []string) (http.Handler, func()) {
	stop := h.app.Router.Subscribe(func(_, next domain.ViewState) {
		ev := viewEvent{Type: "view", viewResponse: h.viewSnapshot()}
		ev.View = next
		hub.Publish(ev)
	})
	ws := push.NewWebSocketHandler(hub, func() any {
		return viewEvent{Type: "view", viewResponse: h.viewSnapshot()}
	}, originPatterns)
	return ws, stop
}
