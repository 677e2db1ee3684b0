package notify

import (
	"context"
	"encoding/json"

	"fruittrace/internal/model"
	ws "fruittrace/internal/websocket"
)

// HubNotifier pushes events to connected admin websocket clients.
type HubNotifier struct {
	hub *ws.Hub
}

func NewHubNotifier(hub *ws.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (h *HubNotifier) Name() string { return "websocket" }

func (h *HubNotifier) Notify(ctx context.Context, e Event) error {
	data, err := json.Marshal(map[string]interface{}{
		"event":   e.Type,
		"message": e.Subject(),
		"data":    e,
	})
	if err != nil {
		return err
	}
	return h.hub.Publish(ctx, ws.Message{Roles: []model.Role{model.RoleAdmin}, Data: data})
}
