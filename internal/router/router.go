// Package router turns inbound chat commands into state changes and fan-out.
package router

import (
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/direct"
	"chatrelay/internal/history"
	"chatrelay/internal/identity"
	"chatrelay/internal/messaging"
	"chatrelay/internal/rooms"
	"chatrelay/pkg/types"
)

// DefaultSnapshotHistory is the number of global messages sent on connect
const DefaultSnapshotHistory = 50

// Options configures a Router
type Options struct {
	SnapshotHistory   int
	PageDefault       int
	PageMax           int
	MessagesPerMinute int
	Now               func() time.Time
}

// handler processes one command for a connection; user is nil only for join
type handler func(connectionID string, user *identity.User, env types.Envelope) (Outcome, error)

type route struct {
	handle    handler
	anonymous bool
}

// Router owns the chat stores and computes each command's Outcome
// ARCHITECTURAL DISCOVERY: Pure state transition plus recipient computation;
// delivery belongs to the hub, which applies the returned Outcome
type Router struct {
	users    *identity.Registry
	rooms    *rooms.Store
	messages *messaging.Engine
	direct   *direct.Store
	pager    *history.Pager
	limiter  *RateLimiter
	now      func() time.Time

	snapshotHistory int
	routes          map[string]route
}

// NewRouter wires the stores into a dispatch table
func NewRouter(users *identity.Registry, roomStore *rooms.Store, engine *messaging.Engine, threads *direct.Store, opts Options) (*Router, error) {
	if users == nil || roomStore == nil || engine == nil || threads == nil {
		return nil, ErrNilDependency
	}

	r := &Router{
		users:           users,
		rooms:           roomStore,
		messages:        engine,
		direct:          threads,
		pager:           history.NewPager(opts.PageDefault, opts.PageMax),
		limiter:         NewRateLimiter(opts.MessagesPerMinute, opts.Now),
		now:             opts.Now,
		snapshotHistory: opts.SnapshotHistory,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.snapshotHistory <= 0 {
		r.snapshotHistory = DefaultSnapshotHistory
	}

	r.routes = map[string]route{
		types.CommandJoin:                {handle: r.handleJoin, anonymous: true},
		types.CommandJoinRoom:            {handle: r.handleJoinRoom},
		types.CommandViewRoom:            {handle: r.handleViewRoom},
		types.CommandSendMessage:         {handle: r.handleSendMessage},
		types.CommandLoadOlderMessages:   {handle: r.handleLoadOlderMessages},
		types.CommandSendPrivateMessage:  {handle: r.handleSendPrivateMessage},
		types.CommandLoadPrivateMessages: {handle: r.handleLoadPrivateMessages},
		types.CommandTyping:              {handle: r.handleTyping},
		types.CommandMarkAsRead:          {handle: r.handleMarkAsRead},
		types.CommandReactToMessage:      {handle: r.handleReactToMessage},
	}
	return r, nil
}

// New builds a Router together with fresh stores
func New(joinHistory int, engineOpts messaging.Options, opts Options) (*Router, error) {
	users := identity.NewRegistry()
	roomStore := rooms.NewStore(joinHistory)
	engine, err := messaging.NewEngine(roomStore, engineOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create message engine: %w", err)
	}
	threads, err := direct.NewStore(users, engine.Compose)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct store: %w", err)
	}
	return NewRouter(users, roomStore, engine, threads, opts)
}

// Dispatch routes one command; the Outcome is applied even when err is non-nil
// FUNCTIONAL DISCOVERY: err explains why a command was dropped or rejected and
// is for logging only; client-visible rejections travel inside the Outcome
func (r *Router) Dispatch(connectionID string, env types.Envelope) (Outcome, error) {
	if env.Type == types.CommandDisconnect {
		out := r.Disconnect(connectionID)
		out.Terminate = append(out.Terminate, connectionID)
		return out, nil
	}

	rt, ok := r.routes[env.Type]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}

	var user *identity.User
	if !rt.anonymous {
		user, ok = r.users.Lookup(connectionID)
		if !ok {
			return Outcome{}, ErrNotIdentified
		}
	}
	return rt.handle(connectionID, user, env)
}

// Disconnect tears a connection down in one step; repeated calls are no-ops
func (r *Router) Disconnect(connectionID string) Outcome {
	var out Outcome
	r.limiter.Forget(connectionID)

	user, ok := r.users.Remove(connectionID)
	if !ok {
		return out
	}

	for _, left := range r.rooms.LeaveOnDisconnect(connectionID, user.DisplayName) {
		name := left.Room.Name()
		remaining := left.Room.Members()
		out.send(remaining, types.EventTypingUpdate, types.TypingUpdatePayload{Room: name, TypingUsers: left.Typing})
		out.send(remaining, types.EventNotification, types.Notification{
			Type:    "leave",
			Message: fmt.Sprintf("%s left %s", user.DisplayName, name),
			Room:    name,
		})
		out.send(remaining, types.EventUserLeftRoom, types.RoomMemberPayload{RoomName: name, Username: user.DisplayName})
	}

	out.send(r.users.ConnectionIDs(), types.EventUserOffline, user.Presence())
	return out
}

// CleanupRateLimits drops limiter state for idle connections
func (r *Router) CleanupRateLimits() {
	r.limiter.Cleanup()
}

func (r *Router) handleJoin(connectionID string, _ *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.JoinPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		// An absent or unreadable name is an empty name
		payload = types.JoinPayload{}
	}

	user, err := r.users.Join(connectionID, payload.DisplayName)
	if err != nil {
		if code, surfaced := joinErrorCode(err); surfaced {
			out.fail(connectionID, code, err)
			out.Terminate = append(out.Terminate, connectionID)
		}
		return out, err
	}

	joined, err := r.rooms.Join(connectionID, types.DefaultRoom)
	if err != nil {
		return out, err
	}
	user.AddRoom(types.DefaultRoom)

	global := joined.Room
	out.reply(connectionID, types.EventConnected, types.ConnectedPayload{
		UserID:      connectionID,
		Username:    user.DisplayName,
		OnlineUsers: r.users.Online(),
		Rooms:       r.rooms.Names(),
		ActiveRoom:  types.DefaultRoom,
		Messages:    types.CloneMessages(history.Latest(global.History(), r.snapshotHistory)),
		Unread:      global.UnreadFor(connectionID),
	})
	out.send(r.users.ConnectionIDsExcept(connectionID), types.EventUserOnline, user.Presence())
	return out, nil
}

func (r *Router) handleJoinRoom(connectionID string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.RoomPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	name, err := rooms.NormalizeName(payload.RoomName)
	if err != nil {
		return out, err
	}

	if _, created := r.rooms.Ensure(name); created {
		out.send(r.users.ConnectionIDs(), types.EventRoomCreated, name)
	}

	result, err := r.rooms.Join(connectionID, name)
	if err != nil {
		return out, err
	}
	user.AddRoom(name)

	out.reply(connectionID, types.EventRoomJoined, types.RoomJoinedPayload{
		RoomName: name,
		Messages: types.CloneMessages(result.Recent),
		Members:  r.presences(result.Room.Members()),
		Unread:   result.Unread,
	})

	// Duplicate joins change nothing, so the room hears nothing
	if result.Joined {
		others := result.Room.MembersExcept(connectionID)
		out.send(others, types.EventNotification, types.Notification{
			Type:    "join",
			Message: fmt.Sprintf("%s joined %s", user.DisplayName, name),
			Room:    name,
		})
		out.send(others, types.EventUserJoinedRoom, types.RoomMemberPayload{RoomName: name, Username: user.DisplayName})
	}
	return out, nil
}

func (r *Router) handleViewRoom(connectionID string, _ *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.RoomPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	name, err := rooms.NormalizeName(payload.RoomName)
	if err != nil {
		return out, err
	}

	unread, err := r.rooms.ResetUnread(name, connectionID)
	if err != nil {
		return out, err
	}
	room, _ := r.rooms.Get(name)
	out.send(room.Members(), types.EventUnreadUpdate, types.UnreadUpdatePayload{Room: name, Unread: unread})
	return out, nil
}

func (r *Router) handleSendMessage(connectionID string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.SendMessagePayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	name, err := rooms.NormalizeName(payload.RoomName)
	if err != nil {
		return out, err
	}
	if _, err := r.rooms.Member(connectionID, name); err != nil {
		return out, err
	}
	if !r.limiter.Allow(connectionID) {
		out.fail(connectionID, types.ErrorCodeRateLimited, ErrRateLimitExceeded)
		return out, ErrRateLimitExceeded
	}

	result, err := r.messages.PostToRoom(connectionID, user.DisplayName, name, payload.Text, payload.Attachment)
	if err != nil {
		r.limiter.Refund(connectionID)
		if errors.Is(err, messaging.ErrAttachmentTooLarge) {
			out.fail(connectionID, types.ErrorCodeAttachmentTooLarge, err)
		}
		return out, err
	}

	members := result.Room.Members()
	out.send(members, types.EventNewMessage, result.Message.Clone())
	out.send(members, types.EventUnreadUpdate, types.UnreadUpdatePayload{Room: name, Unread: result.Unread})
	out.archiveMessage(result.Message)
	return out, nil
}

func (r *Router) handleLoadOlderMessages(connectionID string, _ *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.LoadOlderMessagesPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	name, err := rooms.NormalizeName(payload.RoomName)
	if err != nil {
		return out, err
	}
	room, ok := r.rooms.Get(name)
	if !ok {
		return out, rooms.ErrRoomNotFound
	}

	page := r.pager.Page(room.History(), payload.BeforeMessageID, payload.Limit)
	out.reply(connectionID, types.EventOlderMessages, types.OlderMessagesPayload{
		Room:     name,
		Messages: types.CloneMessages(page.Messages),
		Limit:    page.Limit,
		HasMore:  page.HasMore,
	})
	return out, nil
}

func (r *Router) handleSendPrivateMessage(connectionID string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.SendPrivateMessagePayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	if identity.NormalizeName(payload.ToDisplayName) == "" {
		return out, ErrEmptyRecipient
	}
	if !r.limiter.Allow(connectionID) {
		out.fail(connectionID, types.ErrorCodeRateLimited, ErrRateLimitExceeded)
		return out, ErrRateLimitExceeded
	}

	delivery, err := r.direct.Send(user, payload.ToDisplayName, payload.Text, payload.Attachment)
	if err != nil {
		r.limiter.Refund(connectionID)
	}
	switch {
	case errors.Is(err, direct.ErrRecipientNotFound):
		out.fail(connectionID, types.ErrorCodeRecipientNotFound, err)
		return out, err
	case errors.Is(err, messaging.ErrAttachmentTooLarge):
		out.fail(connectionID, types.ErrorCodeAttachmentTooLarge, err)
		return out, err
	case err != nil:
		return out, err
	}

	out.reply(connectionID, types.EventPrivateMessage, delivery.Sent)
	out.reply(delivery.RecipientConnectionID, types.EventPrivateMessage, delivery.Received)
	out.archiveMessage(delivery.Sent)
	return out, nil
}

func (r *Router) handleLoadPrivateMessages(connectionID string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.LoadPrivateMessagesPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	with := identity.NormalizeName(payload.WithDisplayName)
	if with == "" {
		return out, ErrEmptyRecipient
	}

	page := r.pager.Page(r.direct.History(user.DisplayName, with), payload.BeforeMessageID, payload.Limit)
	views := make([]*types.Message, len(page.Messages))
	for i, msg := range page.Messages {
		views[i] = msg.Clone()
		views[i].Direction = types.DirectionReceived
		if msg.Sender == user.DisplayName {
			views[i].Direction = types.DirectionSent
		}
	}
	out.reply(connectionID, types.EventPrivateHistory, types.PrivateHistoryPayload{
		With:     with,
		Messages: views,
		Limit:    page.Limit,
		HasMore:  page.HasMore,
	})
	return out, nil
}

func (r *Router) handleTyping(connectionID string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.TypingPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}
	name, err := rooms.NormalizeName(payload.RoomName)
	if err != nil {
		return out, err
	}

	typing, err := r.rooms.SetTyping(connectionID, user.DisplayName, name, payload.IsTyping)
	if err != nil {
		return out, err
	}
	room, _ := r.rooms.Get(name)
	out.send(room.Members(), types.EventTypingUpdate, types.TypingUpdatePayload{Room: name, TypingUsers: typing})
	return out, nil
}

func (r *Router) handleMarkAsRead(connectionID string, _ *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.MarkAsReadPayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}

	result, changed, err := r.messages.MarkRead(connectionID, payload.MessageID)
	if err != nil || !changed {
		return out, err
	}
	room, ok := r.rooms.Get(result.Room)
	if !ok {
		return out, rooms.ErrRoomNotFound
	}
	out.send(room.Members(), types.EventMessageRead, types.MessageReadPayload{
		MessageID: payload.MessageID,
		ReaderID:  connectionID,
		Room:      result.Room,
		ReadBy:    append([]string(nil), result.Message.ReadBy...),
	})
	return out, nil
}

func (r *Router) handleReactToMessage(_ string, user *identity.User, env types.Envelope) (Outcome, error) {
	var out Outcome
	var payload types.ReactToMessagePayload
	if err := types.DecodePayload(env, &payload); err != nil {
		return out, err
	}

	result, err := r.messages.ToggleReaction(user.DisplayName, payload.MessageID, payload.EmojiKey)
	if err != nil {
		return out, err
	}
	room, ok := r.rooms.Get(result.Room)
	if !ok {
		return out, rooms.ErrRoomNotFound
	}
	out.send(room.Members(), types.EventReactionUpdate, types.ReactionUpdatePayload{
		MessageID: result.MessageID,
		Room:      result.Room,
		Reactions: result.Reactions,
	})
	out.archiveReaction(&types.ReactionRecord{
		MessageID: result.MessageID,
		Room:      result.Room,
		Username:  user.DisplayName,
		EmojiKey:  payload.EmojiKey,
		Added:     result.Added,
		Timestamp: r.now().UTC(),
	})
	return out, nil
}

func (r *Router) presences(connectionIDs []string) []types.Presence {
	out := make([]types.Presence, 0, len(connectionIDs))
	for _, id := range connectionIDs {
		if user, ok := r.users.Lookup(id); ok {
			out = append(out, user.Presence())
		}
	}
	return out
}

func joinErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, identity.ErrNameTaken):
		return types.ErrorCodeNameTaken, true
	case errors.Is(err, identity.ErrEmptyName):
		return types.ErrorCodeEmptyName, true
	case errors.Is(err, identity.ErrNameTooLong):
		return types.ErrorCodeNameTooLong, true
	default:
		return "", false
	}
}
