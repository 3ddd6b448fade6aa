package repository

import (
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/model"
)

// Membership rules shared by every ConversationStore implementation.

// RequireGroupAdmin allows the action only for an active admin of a group
func RequireGroupAdmin(conv *model.Conversation, actorID uuid.UUID) error {
	if !conv.IsGroup() {
		return apperr.Forbidden("direct conversations do not support membership changes")
	}
	p, ok := conv.Participants[actorID]
	if !ok || !p.Active() || p.Role != model.MemberRoleAdmin {
		return apperr.Forbidden("only group admins can do that")
	}
	return nil
}

// AuthorizeRemoval allows admins to remove anyone and members to remove themselves
func AuthorizeRemoval(conv *model.Conversation, actorID, userID uuid.UUID) error {
	if !conv.IsGroup() {
		return apperr.Forbidden("direct conversations do not support membership changes")
	}
	if !conv.IsActiveParticipant(actorID) {
		return apperr.Forbidden("not a participant")
	}
	if actorID != userID {
		if err := RequireGroupAdmin(conv, actorID); err != nil {
			return err
		}
	}
	if !conv.IsActiveParticipant(userID) {
		return apperr.NotFound("participant not found")
	}
	return nil
}

// CheckRoleChange validates an admin changing a member's role
func CheckRoleChange(conv *model.Conversation, actorID, userID uuid.UUID, role model.MemberRole) error {
	if role != model.MemberRoleAdmin && role != model.MemberRoleMember {
		return apperr.InvalidArgument("unknown role %q", role)
	}
	if err := RequireGroupAdmin(conv, actorID); err != nil {
		return err
	}
	target, ok := conv.Participants[userID]
	if !ok || !target.Active() {
		return apperr.NotFound("participant not found")
	}
	if role == model.MemberRoleMember && target.Role == model.MemberRoleAdmin && conv.Participants.Admins() == 1 {
		return apperr.InvalidArgument("a group must keep at least one admin")
	}
	return nil
}

// DedupeExcluding returns ids without duplicates, nil ids and exclude, keeping order
func DedupeExcluding(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == exclude || id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
