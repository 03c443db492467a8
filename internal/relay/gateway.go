package relay

import (
	"context"
	"strings"
	"time"

	"edulink/internal/database"
	"edulink/internal/hierarchy"
	"edulink/internal/models"
	"edulink/internal/presence"
	"edulink/internal/relayerr"
	"edulink/pkg/logger"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Fanout is the outbound half of the relay; the Hub implements it.
type Fanout interface {
	SendToUser(userID string, ev models.Event)
	Broadcast(ev models.Event)
}

// Gateway applies the message relay rules: validation, hierarchy, the edit
// window, read receipts and soft deletion. Everything it persists goes
// through the message store; a message only counts as sent once the store
// acknowledges the write.
type Gateway struct {
	store      database.MessageRepository
	resolver   *hierarchy.Resolver
	presence   *presence.Tracker
	fanout     Fanout
	clk        clock.Clock
	editWindow time.Duration
}

func NewGateway(store database.MessageRepository, resolver *hierarchy.Resolver, tracker *presence.Tracker, fanout Fanout, clk clock.Clock, editWindow time.Duration) *Gateway {
	return &Gateway{
		store:      store,
		resolver:   resolver,
		presence:   tracker,
		fanout:     fanout,
		clk:        clk,
		editWindow: editWindow,
	}
}

// Send validates, persists and fans out a new message. The sender's own
// devices get message:sent, the recipient's get message:new.
func (g *Gateway) Send(ctx context.Context, actor *models.User, p models.SendMessagePayload) (*models.Message, error) {
	if p.RecipientID == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "recipient is required")
	}
	if p.Type == "" {
		p.Type = models.MessageTypeText
	}
	if p.Type != models.MessageTypeText && p.Type != models.MessageTypeFile {
		return nil, relayerr.Newf(relayerr.CodeValidation, "unknown message type %q", p.Type)
	}
	content := strings.TrimSpace(p.Content)
	if p.Type == models.MessageTypeText && content == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "message content is required")
	}

	sender, receiver, err := g.resolver.Resolve(ctx, actor.ID, p.RecipientID)
	if err != nil {
		return nil, err
	}
	if !hierarchy.Allows(sender.Role, receiver.Role) {
		return nil, relayerr.Newf(relayerr.CodeHierarchyViolation,
			"a %s may not message a %s", sender.Role, receiver.Role)
	}

	msg := &models.Message{
		ID:           uuid.NewString(),
		SenderID:     sender.ID,
		ReceiverID:   receiver.ID,
		Participants: []string{sender.ID, receiver.ID},
		SenderRole:   sender.Role,
		ReceiverRole: receiver.Role,
		Content:      content,
		FileRef:      p.FileRef,
		Status:       models.MessageUnread,
		Type:         p.Type,
		DeliveredTo:  []string{sender.ID},
		SeenBy:       []string{sender.ID},
		ThreadKey:    models.ThreadKey(sender.ID, receiver.ID),
		CreatedAt:    g.clk.Now(),
	}

	if err := g.store.CreateMessage(ctx, msg); err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to persist message", err)
	}

	g.sendEvent(receiver.ID, models.EventMessageNew, msg)
	g.sendEvent(sender.ID, models.EventMessageSent, msg)

	if g.presence.IsOnline(receiver.ID) {
		go g.recordDelivery(msg.ID, receiver.ID)
	}

	return msg, nil
}

// Edit rewrites a message's content. Only the original sender may edit, and
// only within the edit window measured from creation; an edit at exactly
// the boundary is still accepted.
func (g *Gateway) Edit(ctx context.Context, actor *models.User, p models.EditMessagePayload) (*models.Message, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "message content is required")
	}

	msg, err := g.store.GetMessageByID(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID {
		return nil, relayerr.New(relayerr.CodeForbidden, "only the sender may edit a message")
	}
	if msg.Deleted {
		return nil, relayerr.New(relayerr.CodeValidation, "cannot edit a deleted message")
	}

	now := g.clk.Now()
	if now.Sub(msg.CreatedAt) > g.editWindow {
		return nil, relayerr.New(relayerr.CodeWindowExpired, "the edit window has closed")
	}

	if err := g.store.UpdateMessageContent(ctx, msg.ID, content, now); err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to update message", err)
	}
	msg.Content = content
	msg.EditedAt = &now

	g.fanoutToParticipants(msg, models.EventMessageUpdate, msg)
	return msg, nil
}

// Delete soft-deletes for everyone when the actor is the sender: the
// content and file reference are cleared and the row flagged, never
// removed. A non-forEveryone delete is a per-viewer local operation with no
// server-side state change.
func (g *Gateway) Delete(ctx context.Context, actor *models.User, p models.DeleteMessagePayload) (interface{}, error) {
	if p.MessageID == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "message id is required")
	}
	if !p.ForEveryone {
		return map[string]string{"scope": "local"}, nil
	}

	msg, err := g.store.GetMessageByID(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID {
		return nil, relayerr.New(relayerr.CodeForbidden, "only the sender may delete for everyone")
	}

	if !msg.Deleted {
		if err := g.store.SoftDeleteMessage(ctx, msg.ID); err != nil {
			return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to delete message", err)
		}
	}
	msg.Content = ""
	msg.FileRef = ""
	msg.Deleted = true

	g.fanoutToParticipants(msg, models.EventMessageDeleted, models.DeletedPayload{
		MessageID: msg.ID,
		ThreadKey: msg.ThreadKey,
	})
	return map[string]string{"scope": "everyone"}, nil
}

// Seen marks a batch of messages read for the calling receiver and fans a
// seen-update to each affected thread. Messages already read are skipped,
// so repeating the call changes nothing.
func (g *Gateway) Seen(ctx context.Context, actor *models.User, p models.SeenPayload) (interface{}, error) {
	if len(p.MessageIDs) == 0 {
		return nil, relayerr.New(relayerr.CodeValidation, "message ids are required")
	}

	updated, err := g.store.MarkMessagesRead(ctx, p.MessageIDs, actor.ID, g.clk.Now())
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to mark messages read", err)
	}

	byThread := make(map[string][]string)
	threadMsg := make(map[string]*models.Message)
	for _, m := range updated {
		byThread[m.ThreadKey] = append(byThread[m.ThreadKey], m.ID)
		threadMsg[m.ThreadKey] = m
	}
	for key, ids := range byThread {
		g.fanoutToParticipants(threadMsg[key], models.EventMessageSeenUpdate, models.SeenUpdatePayload{
			ThreadKey:  key,
			MessageIDs: ids,
			SeenBy:     actor.ID,
		})
	}

	return map[string]int{"updated": len(updated)}, nil
}

// ReadOne is the single-message variant of Seen; reading an already-read
// message is a no-op.
func (g *Gateway) ReadOne(ctx context.Context, actor *models.User, p models.ReadPayload) (interface{}, error) {
	if p.MessageID == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "message id is required")
	}

	updated, err := g.store.MarkMessagesRead(ctx, []string{p.MessageID}, actor.ID, g.clk.Now())
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to mark message read", err)
	}
	if len(updated) == 0 {
		return map[string]int{"updated": 0}, nil
	}

	msg := updated[0]
	g.fanoutToParticipants(msg, models.EventMessageRead, msg)
	return msg, nil
}

// History returns the conversation with another user, oldest first. The
// view is allowed when either direction of the pair passes the hierarchy
// table, which is looser than the send-path check.
func (g *Gateway) History(ctx context.Context, actor *models.User, p models.HistoryPayload) (interface{}, error) {
	if p.WithUserID == "" {
		return nil, relayerr.New(relayerr.CodeValidation, "user id is required")
	}

	self, other, err := g.resolver.Resolve(ctx, actor.ID, p.WithUserID)
	if err != nil {
		return nil, err
	}
	if !hierarchy.CanView(self.Role, other.Role) {
		return nil, relayerr.New(relayerr.CodeForbidden, "conversation not permitted between these roles")
	}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := g.store.ListThreadMessages(ctx, models.ThreadKey(actor.ID, p.WithUserID), limit)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to load thread", err)
	}
	return msgs, nil
}

// SetHidden toggles the appear-offline flag and broadcasts the resulting
// visible status.
func (g *Gateway) SetHidden(actor *models.User, p models.HidePayload) (interface{}, error) {
	g.presence.SetHidden(actor.ID, p.Hidden)

	status := presence.StatusOffline
	if g.presence.IsVisibleOnline(actor.ID) {
		status = presence.StatusOnline
	}
	ev, err := models.NewEvent(models.EventUserStatus, models.UserStatusPayload{
		UserID: actor.ID,
		Status: status,
	})
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInternal, "failed to broadcast status", err)
	}
	g.fanout.Broadcast(ev)

	return map[string]bool{"hidden": p.Hidden}, nil
}

func (g *Gateway) recordDelivery(messageID, userID string) {
	if err := g.store.AddDelivered(context.Background(), messageID, userID); err != nil {
		logger.Error("Error recording delivery of %s to %s: %v", messageID, userID, err)
	}
}

func (g *Gateway) sendEvent(userID string, t models.EventType, payload interface{}) {
	ev, err := models.NewEvent(t, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", t, err)
		return
	}
	g.fanout.SendToUser(userID, ev)
}

func (g *Gateway) fanoutToParticipants(msg *models.Message, t models.EventType, payload interface{}) {
	ev, err := models.NewEvent(t, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", t, err)
		return
	}
	for _, userID := range msg.Participants {
		g.fanout.SendToUser(userID, ev)
	}
}
