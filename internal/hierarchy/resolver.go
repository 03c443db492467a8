package hierarchy

import (
	"context"

	"edulink/internal/database"
	"edulink/internal/models"
	"edulink/internal/relayerr"
)

// allowed is the static role table for the send path: admins message
// teachers, teachers message admins and students, students message teachers.
var allowed = map[models.Role]map[models.Role]bool{
	models.RoleAdmin: {
		models.RoleTeacher: true,
	},
	models.RoleTeacher: {
		models.RoleAdmin:   true,
		models.RoleStudent: true,
	},
	models.RoleStudent: {
		models.RoleTeacher: true,
	},
}

// Allows reports whether senderRole may send to receiverRole.
func Allows(senderRole, receiverRole models.Role) bool {
	return allowed[senderRole][receiverRole]
}

// CanView is the looser thread-view rule: either direction passing the send
// table is enough to open a read-only conversation view.
func CanView(a, b models.Role) bool {
	return Allows(a, b) || Allows(b, a)
}

// Resolver validates sender/receiver identity pairs against the user
// directory before any relay operation touches them.
type Resolver struct {
	users database.UserRepository
}

func NewResolver(users database.UserRepository) *Resolver {
	return &Resolver{users: users}
}

// Resolve loads both records and fails NotFound when either identity is
// unknown, Inactive when either account is disabled or unapproved.
func (r *Resolver) Resolve(ctx context.Context, senderID, receiverID string) (*models.User, *models.User, error) {
	records, err := r.users.FindByIDs(ctx, []string{senderID, receiverID})
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*models.User, len(records))
	for _, u := range records {
		byID[u.ID] = u
	}

	sender, ok := byID[senderID]
	if !ok {
		return nil, nil, relayerr.New(relayerr.CodeNotFound, "sender not found")
	}
	receiver, ok := byID[receiverID]
	if !ok {
		return nil, nil, relayerr.New(relayerr.CodeNotFound, "recipient not found")
	}

	if !sender.CanMessage() {
		return nil, nil, relayerr.New(relayerr.CodeInactive, "sender account is disabled or not approved")
	}
	if !receiver.CanMessage() {
		return nil, nil, relayerr.New(relayerr.CodeInactive, "recipient account is disabled or not approved")
	}

	return sender, receiver, nil
}
