package syncer

import (
	"context"
	"time"

	"github.com/chatbridge/chatbridge/internal/classifier"
)

// ResolveMemberNames maps display names from a classified system message to
// member account ids. Backend member lists lag membership changes, so a miss
// invalidates the cached members and refetches under backoff. Names still
// unresolved after the retry budget are dropped; resolution degrades, it
// never fails.
func (d *Driver) ResolveMemberNames(ctx context.Context, roomID string, names []string) []string {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id := d.ResolveMemberName(ctx, roomID, name); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveMemberName maps one display name to a member account id, or ""
// when the retry budget runs out.
func (d *Driver) ResolveMemberName(ctx context.Context, roomID, name string) string {
	if name == "" {
		return ""
	}
	if name == classifier.Self {
		return d.store.AccountID()
	}

	delay := d.opts.MemberRetryBase
	for attempt := 0; ; attempt++ {
		if members, err := d.RoomMembers(ctx, roomID); err == nil {
			for id, m := range members {
				if m.RoomAlias == name || m.Name == name {
					return id
				}
			}
		}
		if attempt >= d.opts.MemberRetryAttempts {
			d.logger.Warn().Str("room", roomID).Str("name", name).Msg("member name unresolved, giving up")
			return ""
		}

		if err := d.store.InvalidateRoomMembers(roomID); err != nil {
			d.logger.Warn().Err(err).Str("room", roomID).Msg("member invalidation failed")
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(delay):
		}
		delay *= memberRetryMultiplier
		if delay > d.opts.MemberRetryCap {
			delay = d.opts.MemberRetryCap
		}
	}
}
