package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/messaging"
	"chatrelay/internal/rooms"
	"chatrelay/pkg/types"
)

func newTestRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	seq := 0
	engineOpts := messaging.Options{
		NewID: func() string {
			seq++
			return fmt.Sprintf("m%d", seq)
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	r, err := New(0, engineOpts, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func command(t *testing.T, commandType string, payload interface{}) types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(commandType, payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func dispatch(t *testing.T, r *Router, connID, commandType string, payload interface{}) Outcome {
	t.Helper()
	out, _ := r.Dispatch(connID, command(t, commandType, payload))
	return out
}

func mustJoin(t *testing.T, r *Router, connID, name string) Outcome {
	t.Helper()
	out, err := r.Dispatch(connID, command(t, types.CommandJoin, name))
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return out
}

func onlyEvent(t *testing.T, out Outcome, connID, eventType string) types.Event {
	t.Helper()
	var found []types.Event
	for _, ev := range out.EventsFor(connID) {
		if ev.Type == eventType {
			found = append(found, ev)
		}
	}
	if len(found) != 1 {
		t.Fatalf("%s received %d %s events, want 1 (all: %+v)", connID, len(found), eventType, out.EventsFor(connID))
	}
	return found[0]
}

func eventTypes(events []types.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRouter_AliceBobScenario(t *testing.T) {
	r := newTestRouter(t, Options{})

	out := mustJoin(t, r, "c-alice", "alice")
	snap := onlyEvent(t, out, "c-alice", types.EventConnected).Payload.(types.ConnectedPayload)
	if !reflect.DeepEqual(snap.Rooms, []string{types.DefaultRoom}) {
		t.Errorf("snapshot rooms = %v", snap.Rooms)
	}
	if len(snap.OnlineUsers) != 1 || snap.OnlineUsers[0].Username != "alice" {
		t.Errorf("snapshot onlineUsers = %v", snap.OnlineUsers)
	}
	if snap.UserID != "c-alice" || snap.ActiveRoom != types.DefaultRoom {
		t.Errorf("snapshot = %+v", snap)
	}

	out = mustJoin(t, r, "c-bob", "bob")
	online := onlyEvent(t, out, "c-alice", types.EventUserOnline).Payload.(types.Presence)
	if online.Username != "bob" || online.ID != "c-bob" {
		t.Errorf("userOnline = %+v", online)
	}
	if len(out.EventsFor("c-bob")) != 1 {
		t.Errorf("bob should only receive his snapshot, got %v", eventTypes(out.EventsFor("c-bob")))
	}

	out = dispatch(t, r, "c-bob", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "hi"})
	msg := onlyEvent(t, out, "c-alice", types.EventNewMessage).Payload.(*types.Message)
	if msg.Text != "hi" || !reflect.DeepEqual(msg.ReadBy, []string{"c-bob"}) {
		t.Errorf("newMessage = %+v", msg)
	}
	unread := onlyEvent(t, out, "c-alice", types.EventUnreadUpdate).Payload.(types.UnreadUpdatePayload)
	if unread.Unread["c-alice"] != 1 || unread.Unread["c-bob"] != 0 {
		t.Errorf("unreadUpdate = %v", unread.Unread)
	}
	if got := eventTypes(out.EventsFor("c-alice")); !reflect.DeepEqual(got, []string{types.EventNewMessage, types.EventUnreadUpdate}) {
		t.Errorf("alice event order = %v", got)
	}

	out = dispatch(t, r, "c-alice", types.CommandMarkAsRead, msg.ID)
	read := onlyEvent(t, out, "c-bob", types.EventMessageRead).Payload.(types.MessageReadPayload)
	if read.ReaderID != "c-alice" || read.MessageID != msg.ID {
		t.Errorf("messageRead = %+v", read)
	}
	if !reflect.DeepEqual(read.ReadBy, []string{"c-bob", "c-alice"}) {
		t.Errorf("readBy = %v, want [c-bob c-alice]", read.ReadBy)
	}
}

func TestRouter_JoinRejections(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
		wantErr  error
	}{
		{"taken", "alice", types.ErrorCodeNameTaken, identity.ErrNameTaken},
		{"taken after trim", " alice ", types.ErrorCodeNameTaken, identity.ErrNameTaken},
		{"empty", "   ", types.ErrorCodeEmptyName, identity.ErrEmptyName},
		{"too long", strings.Repeat("n", identity.MaxNameLength+1), types.ErrorCodeNameTooLong, identity.ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, Options{})
			mustJoin(t, r, "c1", "alice")

			out, err := r.Dispatch("c2", command(t, types.CommandJoin, tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			ev := onlyEvent(t, out, "c2", types.EventError)
			if code := ev.Payload.(types.ErrorPayload).Code; code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if !reflect.DeepEqual(out.Terminate, []string{"c2"}) {
				t.Errorf("Terminate = %v, want [c2]", out.Terminate)
			}
			if len(out.EventsFor("c1")) != 0 {
				t.Errorf("existing user notified of rejected join: %v", eventTypes(out.EventsFor("c1")))
			}
		})
	}
}

func TestRouter_JoinWithoutUsableName(t *testing.T) {
	tests := []struct {
		name    string
		payload json.RawMessage
	}{
		{"no payload", nil},
		{"null payload", json.RawMessage(`null`)},
		{"wrong shape", json.RawMessage(`42`)},
		{"object without name", json.RawMessage(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, Options{})

			out, err := r.Dispatch("c1", types.Envelope{Type: types.CommandJoin, Payload: tt.payload})
			if !errors.Is(err, identity.ErrEmptyName) {
				t.Errorf("error = %v, want %v", err, identity.ErrEmptyName)
			}
			ev := onlyEvent(t, out, "c1", types.EventError)
			if code := ev.Payload.(types.ErrorPayload).Code; code != types.ErrorCodeEmptyName {
				t.Errorf("code = %q, want %q", code, types.ErrorCodeEmptyName)
			}
			if !reflect.DeepEqual(out.Terminate, []string{"c1"}) {
				t.Errorf("Terminate = %v, want [c1]", out.Terminate)
			}
		})
	}
}

func TestRouter_SecondJoinSilentlyDropped(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c1", "alice")

	out, err := r.Dispatch("c1", command(t, types.CommandJoin, "alice2"))
	if !errors.Is(err, identity.ErrAlreadyIdentified) {
		t.Errorf("expected ErrAlreadyIdentified, got %v", err)
	}
	if !out.Empty() {
		t.Errorf("second join produced output: %+v", out)
	}
}

func TestRouter_CommandsRequireJoin(t *testing.T) {
	r := newTestRouter(t, Options{})
	for _, commandType := range []string{
		types.CommandJoinRoom,
		types.CommandSendMessage,
		types.CommandTyping,
		types.CommandMarkAsRead,
		types.CommandReactToMessage,
		types.CommandSendPrivateMessage,
	} {
		out, err := r.Dispatch("stranger", command(t, commandType, map[string]string{"roomName": "global"}))
		if !errors.Is(err, ErrNotIdentified) || !out.Empty() {
			t.Errorf("%s from unidentified connection: %+v, %v", commandType, out, err)
		}
	}
}

func TestRouter_UnknownCommand(t *testing.T) {
	r := newTestRouter(t, Options{})
	out, err := r.Dispatch("c1", types.Envelope{Type: "selfDestruct"})
	if !errors.Is(err, ErrUnknownCommand) || !out.Empty() {
		t.Errorf("unknown command: %+v, %v", out, err)
	}
}

func TestRouter_JoinRoom(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")

	out := dispatch(t, r, "c-alice", types.CommandJoinRoom, types.RoomPayload{RoomName: " dev "})
	for _, id := range []string{"c-alice", "c-bob"} {
		if name := onlyEvent(t, out, id, types.EventRoomCreated).Payload.(string); name != "dev" {
			t.Errorf("roomCreated to %s = %q", id, name)
		}
	}
	joined := onlyEvent(t, out, "c-alice", types.EventRoomJoined).Payload.(types.RoomJoinedPayload)
	if joined.RoomName != "dev" || len(joined.Members) != 1 || joined.Members[0].Username != "alice" {
		t.Errorf("roomJoined = %+v", joined)
	}

	out = dispatch(t, r, "c-bob", types.CommandJoinRoom, "dev")
	if len(out.EventsFor("c-bob")) != 1 {
		t.Errorf("bob events = %v, want only roomJoined", eventTypes(out.EventsFor("c-bob")))
	}
	if got := eventTypes(out.EventsFor("c-alice")); !reflect.DeepEqual(got, []string{types.EventNotification, types.EventUserJoinedRoom}) {
		t.Errorf("alice events = %v", got)
	}
	member := onlyEvent(t, out, "c-alice", types.EventUserJoinedRoom).Payload.(types.RoomMemberPayload)
	if member.RoomName != "dev" || member.Username != "bob" {
		t.Errorf("userJoinedRoom = %+v", member)
	}

	// Duplicate join replies to the caller only
	out = dispatch(t, r, "c-bob", types.CommandJoinRoom, "dev")
	onlyEvent(t, out, "c-bob", types.EventRoomJoined)
	if len(out.EventsFor("c-alice")) != 0 {
		t.Errorf("duplicate join notified alice: %v", eventTypes(out.EventsFor("c-alice")))
	}

	if _, err := r.Dispatch("c-bob", command(t, types.CommandJoinRoom, "  ")); !errors.Is(err, rooms.ErrEmptyRoomName) {
		t.Errorf("empty room name: expected ErrEmptyRoomName, got %v", err)
	}
}

func TestRouter_SendMessageRequiresMembership(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")
	dispatch(t, r, "c-alice", types.CommandJoinRoom, "dev")

	out, err := r.Dispatch("c-bob", command(t, types.CommandSendMessage, types.SendMessagePayload{RoomName: "dev", Text: "hi"}))
	if !errors.Is(err, rooms.ErrNotAMember) || !out.Empty() {
		t.Errorf("non-member send: %+v, %v", out, err)
	}
	out, err = r.Dispatch("c-bob", command(t, types.CommandSendMessage, types.SendMessagePayload{RoomName: "nope", Text: "hi"}))
	if !errors.Is(err, rooms.ErrRoomNotFound) || !out.Empty() {
		t.Errorf("unknown room send: %+v, %v", out, err)
	}
}

func TestRouter_SendMessageOutcome(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")

	out := dispatch(t, r, "c-alice", types.CommandSendMessage, types.SendMessagePayload{
		RoomName:   types.DefaultRoom,
		Attachment: json.RawMessage(`{"name":"cat.png"}`),
	})
	if len(out.Archive) != 1 || out.Archive[0].Message == nil || out.Archive[0].Message.Room != types.DefaultRoom {
		t.Errorf("Archive = %+v", out.Archive)
	}

	out, err := r.Dispatch("c-alice", command(t, types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom}))
	if !errors.Is(err, messaging.ErrEmptyMessage) || !out.Empty() {
		t.Errorf("empty message: %+v, %v", out, err)
	}
}

func TestRouter_AttachmentTooLargeSurfaced(t *testing.T) {
	r, err := New(0, messaging.Options{MaxAttachmentBytes: 8}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustJoin(t, r, "c1", "alice")

	out := dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{
		RoomName:   types.DefaultRoom,
		Attachment: json.RawMessage(`"0123456789abcdef"`),
	})
	ev := onlyEvent(t, out, "c1", types.EventError)
	if ev.Payload.(types.ErrorPayload).Code != types.ErrorCodeAttachmentTooLarge {
		t.Errorf("error payload = %+v", ev.Payload)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	r := newTestRouter(t, Options{MessagesPerMinute: 2})
	mustJoin(t, r, "c1", "alice")

	send := func() Outcome {
		return dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "x"})
	}
	send()
	send()
	out := send()
	ev := onlyEvent(t, out, "c1", types.EventError)
	if ev.Payload.(types.ErrorPayload).Code != types.ErrorCodeRateLimited {
		t.Errorf("error payload = %+v", ev.Payload)
	}
	room, _ := r.rooms.Get(types.DefaultRoom)
	if room.Len() != 2 {
		t.Errorf("history = %d messages, want 2", room.Len())
	}
}

func TestRouter_RejectedSendsKeepQuota(t *testing.T) {
	r := newTestRouter(t, Options{MessagesPerMinute: 2})
	mustJoin(t, r, "c1", "alice")

	for i := 0; i < 3; i++ {
		dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "   "})
		dispatch(t, r, "c1", types.CommandSendPrivateMessage, types.SendPrivateMessagePayload{ToDisplayName: "nobody", Text: "hi"})
	}

	out := dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "real"})
	onlyEvent(t, out, "c1", types.EventNewMessage)
	out = dispatch(t, r, "c1", types.CommandSendPrivateMessage, types.SendPrivateMessagePayload{ToDisplayName: "alice", Text: "note to self"})
	if len(out.EventsFor("c1")) == 0 || out.EventsFor("c1")[0].Type != types.EventPrivateMessage {
		t.Errorf("second real send = %v, want privateMessage", eventTypes(out.EventsFor("c1")))
	}

	out = dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "over"})
	ev := onlyEvent(t, out, "c1", types.EventError)
	if ev.Payload.(types.ErrorPayload).Code != types.ErrorCodeRateLimited {
		t.Errorf("error payload = %+v", ev.Payload)
	}
}

func TestRouter_ViewRoomResetsUnread(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")
	dispatch(t, r, "c-bob", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "one"})

	out := dispatch(t, r, "c-alice", types.CommandViewRoom, types.DefaultRoom)
	update := onlyEvent(t, out, "c-bob", types.EventUnreadUpdate).Payload.(types.UnreadUpdatePayload)
	if update.Unread["c-alice"] != 0 {
		t.Errorf("after view: %v", update.Unread)
	}

	out = dispatch(t, r, "c-bob", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "two"})
	update = onlyEvent(t, out, "c-alice", types.EventUnreadUpdate).Payload.(types.UnreadUpdatePayload)
	if update.Unread["c-alice"] != 1 {
		t.Errorf("after next message: %v", update.Unread)
	}
}

func TestRouter_LoadOlderMessages(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c1", "alice")
	for i := 0; i < 30; i++ {
		dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: fmt.Sprintf("t%d", i)})
	}

	out := dispatch(t, r, "c1", types.CommandLoadOlderMessages, types.LoadOlderMessagesPayload{
		RoomName:        types.DefaultRoom,
		BeforeMessageID: "m11",
		Limit:           5,
	})
	page := onlyEvent(t, out, "c1", types.EventOlderMessages).Payload.(types.OlderMessagesPayload)
	if len(page.Messages) != 5 || page.Messages[0].ID != "m6" || page.Messages[4].ID != "m10" {
		t.Errorf("page = %d messages from %s", len(page.Messages), page.Messages[0].ID)
	}

	// Room must exist; membership is not required
	mustJoin(t, r, "c2", "bob")
	out, err := r.Dispatch("c2", command(t, types.CommandLoadOlderMessages, types.LoadOlderMessagesPayload{RoomName: "nope"}))
	if !errors.Is(err, rooms.ErrRoomNotFound) || !out.Empty() {
		t.Errorf("unknown room: %+v, %v", out, err)
	}
}

func TestRouter_LoadOlderMessagesAbovePageMax(t *testing.T) {
	r := newTestRouter(t, Options{MessagesPerMinute: 1000})
	mustJoin(t, r, "c1", "alice")
	for i := 0; i < 150; i++ {
		dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: fmt.Sprintf("t%d", i)})
	}

	load := func(before string) types.OlderMessagesPayload {
		out := dispatch(t, r, "c1", types.CommandLoadOlderMessages, types.LoadOlderMessagesPayload{
			RoomName:        types.DefaultRoom,
			BeforeMessageID: before,
			Limit:           150,
		})
		return onlyEvent(t, out, "c1", types.EventOlderMessages).Payload.(types.OlderMessagesPayload)
	}

	first := load("")
	if len(first.Messages) != 100 || first.Limit != 100 || !first.HasMore {
		t.Fatalf("first page = %d messages, limit %d, hasMore %v", len(first.Messages), first.Limit, first.HasMore)
	}
	second := load(first.Messages[0].ID)
	if len(second.Messages) != 50 || second.HasMore {
		t.Errorf("second page = %d messages, hasMore %v", len(second.Messages), second.HasMore)
	}
	if second.Messages[0].ID != "m1" {
		t.Errorf("second page starts at %s, want m1", second.Messages[0].ID)
	}
}

func TestRouter_PrivateMessages(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")

	out := dispatch(t, r, "c-alice", types.CommandSendPrivateMessage, types.SendPrivateMessagePayload{ToDisplayName: "bob", Text: "psst"})
	sent := onlyEvent(t, out, "c-alice", types.EventPrivateMessage).Payload.(*types.Message)
	received := onlyEvent(t, out, "c-bob", types.EventPrivateMessage).Payload.(*types.Message)
	if sent.Direction != types.DirectionSent || received.Direction != types.DirectionReceived {
		t.Errorf("directions = %q / %q", sent.Direction, received.Direction)
	}
	if sent.ID != received.ID || sent.Text != received.Text {
		t.Errorf("views carry different content: %+v / %+v", sent, received)
	}

	out = dispatch(t, r, "c-alice", types.CommandSendPrivateMessage, types.SendPrivateMessagePayload{ToDisplayName: "ghost", Text: "hello?"})
	ev := onlyEvent(t, out, "c-alice", types.EventError)
	if ev.Payload.(types.ErrorPayload).Code != types.ErrorCodeRecipientNotFound {
		t.Errorf("error payload = %+v", ev.Payload)
	}

	dispatch(t, r, "c-bob", types.CommandSendPrivateMessage, types.SendPrivateMessagePayload{ToDisplayName: "alice", Text: "reply"})
	out = dispatch(t, r, "c-bob", types.CommandLoadPrivateMessages, types.LoadPrivateMessagesPayload{WithDisplayName: "alice"})
	thread := onlyEvent(t, out, "c-bob", types.EventPrivateHistory).Payload.(types.PrivateHistoryPayload)
	if thread.With != "alice" || len(thread.Messages) != 2 {
		t.Fatalf("privateHistory = %+v", thread)
	}
	if thread.Messages[0].Direction != types.DirectionReceived || thread.Messages[1].Direction != types.DirectionSent {
		t.Errorf("history directions = %q, %q", thread.Messages[0].Direction, thread.Messages[1].Direction)
	}
}

func TestRouter_TypingAndReactions(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")

	out := dispatch(t, r, "c-alice", types.CommandTyping, types.TypingPayload{RoomName: types.DefaultRoom, IsTyping: true})
	typing := onlyEvent(t, out, "c-bob", types.EventTypingUpdate).Payload.(types.TypingUpdatePayload)
	if !reflect.DeepEqual(typing.TypingUsers, []string{"alice"}) {
		t.Errorf("typingUsers = %v", typing.TypingUsers)
	}

	posted := dispatch(t, r, "c-bob", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "hi"})
	msg := onlyEvent(t, posted, "c-bob", types.EventNewMessage).Payload.(*types.Message)

	out = dispatch(t, r, "c-alice", types.CommandReactToMessage, types.ReactToMessagePayload{MessageID: msg.ID, EmojiKey: "like"})
	update := onlyEvent(t, out, "c-bob", types.EventReactionUpdate).Payload.(types.ReactionUpdatePayload)
	if !reflect.DeepEqual(update.Reactions, map[string][]string{"like": {"alice"}}) {
		t.Errorf("reactions = %v", update.Reactions)
	}
	if len(out.Archive) != 1 || out.Archive[0].Reaction == nil || !out.Archive[0].Reaction.Added {
		t.Errorf("Archive = %+v", out.Archive)
	}

	out = dispatch(t, r, "c-alice", types.CommandReactToMessage, types.ReactToMessagePayload{MessageID: msg.ID, EmojiKey: "like"})
	update = onlyEvent(t, out, "c-bob", types.EventReactionUpdate).Payload.(types.ReactionUpdatePayload)
	if len(update.Reactions) != 0 {
		t.Errorf("reactions after toggle back = %v", update.Reactions)
	}

	out, err := r.Dispatch("c-alice", command(t, types.CommandReactToMessage, types.ReactToMessagePayload{MessageID: "stale", EmojiKey: "like"}))
	if !errors.Is(err, messaging.ErrMessageNotFound) || !out.Empty() {
		t.Errorf("stale reaction: %+v, %v", out, err)
	}
}

func TestRouter_MarkAsReadIsIdempotent(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")
	posted := dispatch(t, r, "c-bob", types.CommandSendMessage, types.SendMessagePayload{RoomName: types.DefaultRoom, Text: "hi"})
	msg := onlyEvent(t, posted, "c-bob", types.EventNewMessage).Payload.(*types.Message)

	dispatch(t, r, "c-alice", types.CommandMarkAsRead, msg.ID)
	if out := dispatch(t, r, "c-alice", types.CommandMarkAsRead, types.MarkAsReadPayload{MessageID: msg.ID}); !out.Empty() {
		t.Errorf("repeat read produced output: %+v", out)
	}
}

func TestRouter_DisconnectTearsDownEverywhere(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c-alice", "alice")
	mustJoin(t, r, "c-bob", "bob")
	dispatch(t, r, "c-alice", types.CommandJoinRoom, "dev")
	dispatch(t, r, "c-bob", types.CommandJoinRoom, "dev")
	dispatch(t, r, "c-alice", types.CommandTyping, types.TypingPayload{RoomName: "dev", IsTyping: true})

	out := r.Disconnect("c-alice")

	got := eventTypes(out.EventsFor("c-bob"))
	want := []string{
		types.EventTypingUpdate, types.EventNotification, types.EventUserLeftRoom,
		types.EventTypingUpdate, types.EventNotification, types.EventUserLeftRoom,
		types.EventUserOffline,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bob events = %v, want %v", got, want)
	}
	if len(out.EventsFor("c-alice")) != 0 {
		t.Error("departed connection addressed in teardown")
	}

	for _, room := range r.rooms.Rooms() {
		if room.IsMember("c-alice") || len(room.Typing()) != 0 {
			t.Errorf("room %s retains alice: members=%v typing=%v", room.Name(), room.Members(), room.Typing())
		}
	}
	if online := r.users.Online(); len(online) != 1 || online[0].Username != "bob" {
		t.Errorf("online = %v", online)
	}

	if again := r.Disconnect("c-alice"); !again.Empty() {
		t.Errorf("duplicate disconnect produced output: %+v", again)
	}

	// Name is free again
	mustJoin(t, r, "c-alice2", "alice")
}

func TestRouter_DisconnectCommand(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c1", "alice")
	mustJoin(t, r, "c2", "bob")

	out, err := r.Dispatch("c1", types.Envelope{Type: types.CommandDisconnect})
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	onlyEvent(t, out, "c2", types.EventUserOffline)
	if !reflect.DeepEqual(out.Terminate, []string{"c1"}) {
		t.Errorf("Terminate = %v, want [c1]", out.Terminate)
	}
}

func TestRouter_Snapshot(t *testing.T) {
	r := newTestRouter(t, Options{})
	mustJoin(t, r, "c1", "alice")
	dispatch(t, r, "c1", types.CommandJoinRoom, "dev")
	dispatch(t, r, "c1", types.CommandSendMessage, types.SendMessagePayload{RoomName: "dev", Text: "hi"})

	snap := r.Snapshot()
	if len(snap.Rooms) != 2 || snap.Rooms[1].Name != "dev" || snap.Rooms[1].Messages != 1 || snap.Rooms[1].Members != 1 {
		t.Errorf("rooms = %+v", snap.Rooms)
	}
	if len(snap.Users) != 1 || snap.IndexedMessages != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestNewRouter_NilDependency(t *testing.T) {
	if _, err := NewRouter(nil, nil, nil, nil, Options{}); !errors.Is(err, ErrNilDependency) {
		t.Errorf("expected ErrNilDependency, got %v", err)
	}
}
