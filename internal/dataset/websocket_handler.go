package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sdvuuv/spitec/internal/region"
	"github.com/sdvuuv/spitec/internal/websocket"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Sessions enumerates connected clients
type Sessions interface {
	Each(fn func(client *websocket.Client))
}

// WebSocketHandler answers view and region requests from map sessions
type WebSocketHandler struct {
	service  *Service
	sessions Sessions
	timeout  time.Duration
	logger   *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler. sessions may
// be nil when views never need to be pushed after a reload.
func NewWebSocketHandler(service *Service, sessions Sessions, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service:  service,
		sessions: sessions,
		timeout:  30 * time.Second,
		logger:   log.Named("dataset-ws-handler"),
	}
}

// Reload reloads the data set and pushes a rebuilt view to every session
// that has requested one
func (h *WebSocketHandler) Reload(ctx context.Context) (int, error) {
	count, err := h.service.Reload(ctx)
	if err != nil {
		return 0, err
	}
	if h.sessions == nil {
		return count, nil
	}

	refreshed := 0
	h.sessions.Each(func(client *websocket.Client) {
		req, ok := client.State().(ViewRequest)
		if !ok {
			return
		}
		view, err := h.service.View(ctx, req)
		if err != nil {
			client.SendError(websocket.MessageTypeViewUpdate, err.Error())
			return
		}
		h.sendToClient(client, &websocket.Message{
			Type: websocket.MessageTypeView,
			Data: map[string]any{"view": view},
		})
		refreshed++
	})
	h.logger.Info("Refreshed session views", logger.Int("sessions", refreshed))
	return count, nil
}

// RegionRequest is a region_select payload. Exactly one shape is set.
type RegionRequest struct {
	BoundingBox *region.BoundingBox `json:"bbox,omitempty"`
	Circle      *region.Circle      `json:"circle,omitempty"`
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var err error
	switch messageType {
	case websocket.MessageTypeViewUpdate:
		err = h.handleViewUpdate(ctx, client, data)
	case websocket.MessageTypeRegionSelect:
		err = h.handleRegionSelect(ctx, client, data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}

	if err != nil {
		client.SendError(messageType, err.Error())
	}
	return err
}

// handleViewUpdate builds the requested view and remembers it for the session
func (h *WebSocketHandler) handleViewUpdate(ctx context.Context, client *websocket.Client, data map[string]any) error {
	var req ViewRequest
	if err := decode(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	view, err := h.service.View(ctx, req)
	if err != nil {
		return err
	}
	client.SetState(req)

	h.logger.Debug("Built view for session",
		logger.String("session", client.ID()),
		logger.String("satellite", req.Satellite),
		logger.Int("tracks", len(view.Tracks)),
		logger.Int("no_data", len(view.NoData)))

	return h.sendToClient(client, &websocket.Message{
		Type: websocket.MessageTypeView,
		Data: map[string]any{"view": view},
	})
}

// handleRegionSelect runs a bounding box or circle selection
func (h *WebSocketHandler) handleRegionSelect(ctx context.Context, client *websocket.Client, data map[string]any) error {
	var req RegionRequest
	if err := decode(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var sel region.Selection
	var err error
	switch {
	case req.BoundingBox != nil && req.Circle == nil:
		sel, err = h.service.SelectBoundingBox(ctx, *req.BoundingBox)
	case req.Circle != nil && req.BoundingBox == nil:
		sel, err = h.service.SelectRadius(ctx, *req.Circle)
	default:
		err = fmt.Errorf("%w: exactly one of bbox or circle is required", ErrInvalidRegion)
	}
	if err != nil {
		return err
	}

	return h.sendToClient(client, &websocket.Message{
		Type: websocket.MessageTypeRegion,
		Data: map[string]any{
			"sites":   sel.Names(),
			"indices": sel,
			"count":   len(sel),
		},
	})
}

// sendToClient sends a message to a specific client
func (h *WebSocketHandler) sendToClient(client *websocket.Client, message *websocket.Message) error {
	if !client.SendMessage(message) {
		h.logger.Warn("Client send channel full, dropping message",
			logger.String("session", client.ID()),
			logger.String("type", message.Type))
	}
	return nil
}

// decode converts a generic message payload into a typed request
func decode(data map[string]any, out any) error {
	if data == nil {
		return errors.New("missing data")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
