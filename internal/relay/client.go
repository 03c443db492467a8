package relay

import (
	"context"
	"encoding/json"
	"time"

	"edulink/internal/config"
	"edulink/internal/models"
	"edulink/internal/relayerr"
	"edulink/internal/signaling"
	"edulink/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one authenticated connection. It is bound to exactly one user
// for its lifetime, and its reader goroutine dispatches inbound events
// strictly in arrival order.
type Client struct {
	id      string
	user    *models.User
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	gateway *Gateway
	calls   *signaling.Coordinator
	cfg     config.RelayConfig
}

func NewClient(conn *websocket.Conn, user *models.User, hub *Hub, gateway *Gateway, calls *signaling.Coordinator, cfg config.RelayConfig) *Client {
	return &Client{
		id:      uuid.NewString(),
		user:    user,
		conn:    conn,
		send:    make(chan []byte, cfg.SendQueueSize),
		hub:     hub,
		gateway: gateway,
		calls:   calls,
		cfg:     cfg,
	}
}

func (c *Client) ID() string          { return c.id }
func (c *Client) UserID() string      { return c.user.ID }
func (c *Client) DisplayName() string { return c.user.FullName() }

// Send enqueues one event for the write pump. A connection that cannot
// drain its queue loses the event rather than blocking the sender.
func (c *Client) Send(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Error("Dropping %s event for slow connection %s", ev.Type, c.id)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.calls.Unregister(c)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}
		c.dispatch(raw)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Failures are confined to the event's
// acknowledgment; a bad event never closes the connection.
func (c *Client) dispatch(raw []byte) {
	var ev models.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Debug("Malformed frame from %s: %v", c.user.ID, err)
		return
	}

	data, err := c.handle(context.Background(), ev)
	if ev.AckID != "" {
		c.sendAck(ev.AckID, data, err)
	} else if err != nil {
		logger.Debug("Event %s from %s failed: %v", ev.Type, c.user.ID, err)
	}
}

func (c *Client) handle(ctx context.Context, ev models.Event) (interface{}, error) {
	switch ev.Type {
	case models.EventMessageSend:
		var p models.SendMessagePayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.Send(ctx, c.user, p)

	case models.EventMessageEdit:
		var p models.EditMessagePayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.Edit(ctx, c.user, p)

	case models.EventMessageDelete:
		var p models.DeleteMessagePayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.Delete(ctx, c.user, p)

	case models.EventMessageSeen:
		var p models.SeenPayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.Seen(ctx, c.user, p)

	case models.EventMessageRead:
		var p models.ReadPayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.ReadOne(ctx, c.user, p)

	case models.EventMessageHistory:
		var p models.HistoryPayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.History(ctx, c.user, p)

	case models.EventUserHide:
		var p models.HidePayload
		if err := decodePayload(ev.Payload, &p); err != nil {
			return nil, err
		}
		return c.gateway.SetHidden(c.user, p)

	case models.EventCallOffer:
		sig, err := decodeSignal(ev.Payload)
		if err != nil {
			return nil, err
		}
		return c.calls.HandleOffer(c, sig)

	case models.EventCallAnswer:
		sig, err := decodeSignal(ev.Payload)
		if err != nil {
			return nil, err
		}
		return c.calls.HandleAnswer(c, sig)

	case models.EventCallICE:
		sig, err := decodeSignal(ev.Payload)
		if err != nil {
			return nil, err
		}
		return nil, c.calls.HandleICE(c, sig)

	case models.EventCallHangup:
		sig, err := decodeSignal(ev.Payload)
		if err != nil {
			return nil, err
		}
		return nil, c.calls.HandleHangup(c, sig)

	case models.EventCallCancel:
		sig, err := decodeSignal(ev.Payload)
		if err != nil {
			return nil, err
		}
		return nil, c.calls.HandleCancel(c, sig)

	default:
		return nil, relayerr.Newf(relayerr.CodeValidation, "unknown event type %q", ev.Type)
	}
}

func (c *Client) sendAck(ackID string, data interface{}, err error) {
	ack := models.Ack{Success: err == nil, Data: data}
	if err != nil {
		ack.Code = string(relayerr.CodeOf(err))
		ack.Message = relayerr.MessageOf(err)
		if relayerr.CodeOf(err) == relayerr.CodeInternal {
			logger.Error("Internal error handling event from %s: %v", c.user.ID, err)
		}
	}

	payload, mErr := json.Marshal(ack)
	if mErr != nil {
		logger.Error("Error marshaling ack: %v", mErr)
		return
	}
	c.Send(models.Event{Type: models.EventAck, AckID: ackID, Payload: payload})
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return relayerr.New(relayerr.CodeValidation, "missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return relayerr.New(relayerr.CodeValidation, "malformed payload")
	}
	return nil
}

func decodeSignal(raw json.RawMessage) (models.CallSignal, error) {
	var sig models.CallSignal
	if err := decodePayload(raw, &sig); err != nil {
		return models.CallSignal{}, err
	}
	return sig, nil
}
