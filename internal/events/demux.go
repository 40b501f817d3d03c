package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/classifier"
	"github.com/chatbridge/chatbridge/internal/correlation"
	"github.com/chatbridge/chatbridge/internal/gateway"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/models"
)

const eventBuffer = 256

// Demux routes inbound frames by code through a closed table: known codes
// decode into typed payloads that update the cache, resolve pending
// correlations, and emit domain events. Unknown codes and undecodable
// payloads are counted and dropped, never forwarded raw.
type Demux struct {
	logger   zerolog.Logger
	registry *correlation.Registry
	store    cache.Store
	messages *cache.MessageCache

	routes map[string]func(data string) error
	events chan Event
}

// New builds a demultiplexer over the given cache and correlation registry.
func New(logger zerolog.Logger, registry *correlation.Registry, store cache.Store, messages *cache.MessageCache) *Demux {
	d := &Demux{
		logger:   logger.With().Str("component", "demux").Logger(),
		registry: registry,
		store:    store,
		messages: messages,
		events:   make(chan Event, eventBuffer),
	}
	d.routes = map[string]func(string) error{
		"login":                    d.handleLogin,
		"logout":                   d.handleLogout,
		"not-login":                d.handleNotLogin,
		"invalid-token":            d.handleInvalidToken,
		"scan":                     d.handleScan,
		"message":                  d.handleMessage,
		"contact-list":             d.handleContactList,
		"contact-info":             d.handleContactInfo,
		"room-list":                d.handleRoomList,
		"room-info":                d.handleRoomInfo,
		"room-member":              d.handleRoomMember,
		"room-create":              d.handleRoomCreate,
		"room-join":                d.handleRoomChange,
		"room-qrcode":              d.handleRoomQRCode,
		"add-friend":               d.handleFriendRequest,
		"new-friend":               d.handleNewFriend,
		"del-friend":               d.handleFriendDeleted,
		"add-friend-before-accept": d.handleAddFriendBeforeAccept,
		"callback-send":            d.handleCallback,
	}
	return d
}

// Events is the typed event stream. A consumer that stops reading eventually
// blocks frame processing; there is no drop path for domain events.
func (d *Demux) Events() <-chan Event {
	return d.events
}

// Attach subscribes the demultiplexer to a gateway. Frame listeners die with
// the stream on reconnect, so the reconnect hook re-registers before the
// reconnect event is emitted.
func (d *Demux) Attach(g *gateway.Gateway) {
	g.OnFrame(d.HandleFrame)
	g.OnHeartbeat(func() {
		d.emit(HeartbeatEvent{})
	})
	g.OnReconnect(func() {
		g.OnFrame(d.HandleFrame)
		d.emit(ReconnectEvent{})
	})
}

// HandleFrame routes one frame. Safe for concurrent use only to the extent
// the underlying store is; the gateway calls it from a single read loop.
func (d *Demux) HandleFrame(f gateway.Frame) {
	handler, ok := d.routes[f.Code]
	if !ok {
		d.logger.Debug().Str("code", f.Code).Msg("unroutable frame dropped")
		metrics.FramesDropped.WithLabelValues("unknown_code").Inc()
		return
	}
	if err := handler(f.Data); err != nil {
		d.logger.Warn().Err(err).Str("code", f.Code).Msg("frame payload rejected")
		metrics.FramesDropped.WithLabelValues("bad_payload").Inc()
	}
}

func (d *Demux) emit(e Event) {
	metrics.EventsEmitted.WithLabelValues(e.Kind()).Inc()
	d.events <- e
}

func (d *Demux) handleLogin(data string) error {
	var w models.WireLogin
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if w.Account == "" {
		return fmt.Errorf("login: empty account")
	}
	if err := d.store.Init(w.Account); err != nil {
		return fmt.Errorf("login: init cache: %w", err)
	}
	d.emit(LoginEvent{
		Account:      w.Account,
		AccountAlias: w.AccountAlias,
		Name:         w.Name,
		Avatar:       w.Thumb,
	})
	return nil
}

func (d *Demux) handleLogout(data string) error {
	var w struct {
		Account string `json:"account"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	account := w.Account
	if account == "" {
		account = d.store.AccountID()
	}
	if err := d.store.Release(); err != nil {
		d.logger.Warn().Err(err).Msg("cache release on logout failed")
	}
	d.emit(LogoutEvent{Account: account, Reason: w.Message})
	return nil
}

// handleNotLogin covers the backend telling us the session expired without a
// proper logout frame. The cached view is released the same way a logout
// releases it; a re-login starts from a fresh Init.
func (d *Demux) handleNotLogin(string) error {
	account := d.store.AccountID()
	if err := d.store.Release(); err != nil {
		d.logger.Warn().Err(err).Msg("cache release on session expiry failed")
	}
	d.emit(LogoutEvent{Account: account, Reason: "not-login"})
	return nil
}

func (d *Demux) handleInvalidToken(string) error {
	d.emit(InvalidTokenEvent{})
	return nil
}

func (d *Demux) handleScan(data string) error {
	var w struct {
		URL    string `json:"url"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	d.emit(ScanEvent{QRCode: w.URL, Status: w.Status})
	return nil
}

func (d *Demux) handleMessage(data string) error {
	var w models.WireMessage
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("message: %w", err)
	}

	msg := envelope(&w)
	d.messages.Set(msg)

	switch msg.ContentType {
	case models.ContentText:
		if f := classifier.ParseFriendshipConfirm(&msg); f != nil {
			d.saveFriendship(*f)
			return nil
		}
		if f := classifier.ParseFriendshipVerify(&msg); f != nil {
			d.saveFriendship(*f)
			return nil
		}
	case models.ContentSystem:
		if inv := classifier.ParseRoomInvite(&msg); inv != nil {
			if err := d.store.SetRoomInvitation(*inv); err != nil {
				d.logger.Warn().Err(err).Msg("room invitation not cached")
			}
			d.emit(RoomInviteEvent{Invitation: *inv})
			return nil
		}
	}
	d.emit(MessageEvent{Message: msg})
	return nil
}

// envelope converts a wire message and mints its time-ordered local id.
func envelope(w *models.WireMessage) models.MessageEnvelope {
	msg := models.MessageEnvelope{
		ID:          ulid.Make().String(),
		ContentType: w.ContentType,
		Content:     w.Content,
		FileName:    w.FileName,
		VoiceLength: w.VoiceLen,
		SelfAccount: w.MyAccount,
		SelfAlias:   w.MyAccountAlias,
		SelfName:    w.MyName,
		PeerAccount: w.ToAccount,
		PeerAlias:   w.ToAccountAlias,
		PeerName:    w.ToName,
		SentBySelf:  w.Type == 1,
		Timestamp:   w.SendTime,
	}
	if models.IsRoomID(w.GNumber) {
		msg.RoomID = w.GNumber
		msg.RoomTopic = w.GName
	}
	return msg
}

func (d *Demux) saveFriendship(f models.Friendship) {
	if err := d.store.SetFriendship(f); err != nil {
		d.logger.Warn().Err(err).Msg("friendship not cached")
	}
	d.emit(FriendshipEvent{Friendship: f})
}

func (d *Demux) handleContactList(data string) error {
	var page models.WireContactPage
	if err := json.Unmarshal([]byte(data), &page); err != nil {
		return fmt.Errorf("contact-list: %w", err)
	}
	for i := range page.Info {
		d.saveContact(contact(&page.Info[i]))
	}
	// Pages may arrive in any order; the cache accumulates the union and
	// only the page past the advertised total ends the wait.
	if page.CurrentPage*100 > page.Total {
		d.registry.Resolve(correlation.ContactListKey(), []byte(data))
	}
	return nil
}

func (d *Demux) handleContactInfo(data string) error {
	var w models.WireContact
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("contact-info: %w", err)
	}
	if w.Account == "" && w.AccountAlias == "" {
		return fmt.Errorf("contact-info: no identifier")
	}
	d.saveContact(contact(&w))
	d.registry.Resolve(correlation.ContactKey(w.Account), []byte(data))
	if w.AccountAlias != "" {
		d.registry.Resolve(correlation.ContactKey(w.AccountAlias), []byte(data))
	}
	return nil
}

func (d *Demux) saveContact(c models.Contact) {
	if err := d.store.SetContact(c); err != nil {
		d.logger.Warn().Err(err).Str("contact", c.ID()).Msg("contact not cached")
		return
	}
	if c.Account != "" && c.AccountAlias != "" {
		if err := d.store.SetAccountAlias(c.Account, c.AccountAlias); err != nil {
			d.logger.Warn().Err(err).Msg("alias mapping not cached")
		}
	}
}

// contact converts a wire contact. Area arrives as "province,city".
func contact(w *models.WireContact) models.Contact {
	province, city := "", ""
	if w.Area != "" {
		parts := strings.SplitN(w.Area, ",", 2)
		province = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			city = strings.TrimSpace(parts[1])
		}
	}
	return models.Contact{
		Account:      w.Account,
		AccountAlias: w.AccountAlias,
		Name:         w.Name,
		Remark:       w.FormName,
		Avatar:       w.Thumb,
		Province:     province,
		City:         city,
		Description:  w.Description,
		Gender:       models.ParseGender(w.Sex),
		Stranger:     w.V1,
		Disturb:      w.Disturb,
	}
}

func (d *Demux) handleRoomList(data string) error {
	var rooms []models.WireRoom
	if err := json.Unmarshal([]byte(data), &rooms); err != nil {
		return fmt.Errorf("room-list: %w", err)
	}
	for i := range rooms {
		d.saveRoomSummary(&rooms[i])
	}
	d.registry.Resolve(correlation.RoomListKey(), []byte(data))
	return nil
}

// saveRoomSummary stores a member-less room sketch without clobbering the
// owner and members of an already synced room.
func (d *Demux) saveRoomSummary(w *models.WireRoom) {
	room := models.Room{
		ID:      w.Number,
		Topic:   w.Name,
		Avatar:  w.Thumb,
		Owner:   w.Author,
		Disturb: w.Disturb,
	}
	if existing, err := d.store.GetRoom(w.Number); err == nil {
		if room.Owner == "" {
			room.Owner = existing.Owner
		}
		room.Members = existing.Members
	}
	if err := d.store.SetRoom(room); err != nil {
		d.logger.Warn().Err(err).Str("room", w.Number).Msg("room not cached")
	}
}

func (d *Demux) handleRoomInfo(data string) error {
	var w models.WireRoomDetail
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("room-info: %w", err)
	}
	if w.Number == "" {
		return fmt.Errorf("room-info: no room id")
	}

	room := models.Room{
		ID:      w.Number,
		Topic:   w.Name,
		Avatar:  w.Thumb,
		Owner:   w.Author,
		Disturb: w.Disturb,
	}
	members := make(map[string]models.RoomMember, len(w.Data))
	for _, m := range w.Data {
		member := models.RoomMember{
			Account:      m.Account,
			AccountAlias: m.AccountAlias,
			Name:         m.Name,
			RoomAlias:    m.MyName,
			Avatar:       m.Thumb,
			Description:  m.Description,
			Gender:       models.Gender(m.Sex),
		}
		room.Members = append(room.Members, member)
		members[member.Account] = member
	}

	if err := d.store.SetRoom(room); err != nil {
		return fmt.Errorf("room-info: cache room: %w", err)
	}
	if err := d.store.SetRoomMembers(room.ID, members); err != nil {
		return fmt.Errorf("room-info: cache members: %w", err)
	}
	d.registry.Resolve(correlation.RoomKey(room.ID), []byte(data))
	return nil
}

func (d *Demux) handleRoomMember(data string) error {
	var w models.WireRoomMemberList
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("room-member: %w", err)
	}
	if len(w.MemberList) == 0 {
		return fmt.Errorf("room-member: empty member list")
	}

	roomID := w.MemberList[0].Number
	members := make(map[string]models.RoomMember, len(w.MemberList))
	for _, m := range w.MemberList {
		members[m.UserName] = models.RoomMember{
			Account:   m.UserName,
			Name:      m.NickName,
			RoomAlias: m.DisplayName,
			Avatar:    m.BigHeadImgURL,
		}
	}
	if err := d.store.SetRoomMembers(roomID, members); err != nil {
		return fmt.Errorf("room-member: cache members: %w", err)
	}
	d.registry.Resolve(correlation.RoomMemberKey(roomID), []byte(data))
	return nil
}

func (d *Demux) handleRoomCreate(data string) error {
	var w models.WireRoomCreate
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("room-create: %w", err)
	}
	if w.Account != "" {
		room := models.Room{ID: w.Account, Topic: w.Name, Owner: w.MyAccount}
		if err := d.store.SetRoom(room); err != nil {
			d.logger.Warn().Err(err).Str("room", w.Account).Msg("created room not cached")
		}
	}
	d.registry.Resolve(correlation.RoomCreateKey(), []byte(data))
	return nil
}

func (d *Demux) handleRoomChange(data string) error {
	var w models.WireRoomChange
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("room-join: %w", err)
	}
	if w.GNumber == "" {
		return fmt.Errorf("room-join: no room id")
	}

	switch w.Type {
	case "1":
		if err := d.store.InvalidateRoomMembers(w.GNumber); err != nil {
			d.logger.Warn().Err(err).Str("room", w.GNumber).Msg("member invalidation failed")
		}
		d.emit(RoomJoinEvent{RoomID: w.GNumber, InviteeIDs: []string{w.Account}})
	case "2":
		if w.Account == w.MyAccount {
			// Our own removal; the room is gone from our perspective.
			if err := d.store.DeleteRoom(w.GNumber); err != nil {
				d.logger.Warn().Err(err).Str("room", w.GNumber).Msg("room deletion failed")
			}
		} else if err := d.store.InvalidateRoomMembers(w.GNumber); err != nil {
			d.logger.Warn().Err(err).Str("room", w.GNumber).Msg("member invalidation failed")
		}
		d.emit(RoomLeaveEvent{RoomID: w.GNumber, LeaverIDs: []string{w.Account}})
	default:
		return fmt.Errorf("room-join: unknown change type %q", w.Type)
	}
	return nil
}

func (d *Demux) handleRoomQRCode(data string) error {
	var w models.WireRoomQRCode
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("room-qrcode: %w", err)
	}
	if w.GroupNumber == "" {
		return fmt.Errorf("room-qrcode: no room id")
	}
	d.registry.Resolve(correlation.RoomQRCodeKey(w.GroupNumber), []byte(data))
	return nil
}

func (d *Demux) handleFriendRequest(data string) error {
	var w models.WireFriendRequest
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("add-friend: %w", err)
	}
	f := classifier.ParseFriendRequest(&w)
	if f == nil {
		return fmt.Errorf("add-friend: unusable request payload")
	}
	d.saveFriendship(*f)
	return nil
}

func (d *Demux) handleNewFriend(data string) error {
	var w models.WireNewFriendMessage
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("new-friend: %w", err)
	}
	c := classifier.ParseNewFriendContact(&w)
	if c == nil {
		return fmt.Errorf("new-friend: unusable contact payload")
	}
	d.saveContact(*c)
	d.saveFriendship(models.Friendship{
		ID:        ulid.Make().String(),
		Type:      models.FriendshipConfirm,
		ContactID: c.ID(),
		Stranger:  c.Stranger,
		Timestamp: w.Time,
	})
	return nil
}

func (d *Demux) handleFriendDeleted(data string) error {
	var w models.WireFriendDeleted
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("del-friend: %w", err)
	}
	d.emit(FriendDeletedEvent{Account: w.Account, AccountAlias: w.AccountAlias})
	return nil
}

func (d *Demux) handleAddFriendBeforeAccept(data string) error {
	var w models.WireAddFriendBeforeAccept
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return fmt.Errorf("add-friend-before-accept: %w", err)
	}
	d.registry.Resolve(correlation.AddFriendKey(w.MyAccount, w.Phone), []byte(data))
	return nil
}

// handleCallback unwraps the callback-send umbrella frame and dispatches on
// its secondary type.
func (d *Demux) handleCallback(data string) error {
	var cb models.WireCallback
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return fmt.Errorf("callback-send: %w", err)
	}

	switch cb.Type {
	case models.CallbackSendAddFriend:
		return d.handleAddFriendBeforeAccept(cb.Msg)
	case models.CallbackScanStatus:
		var w models.WireScanStatus
		if err := json.Unmarshal([]byte(cb.Msg), &w); err != nil {
			return fmt.Errorf("callback-send scan: %w", err)
		}
		d.emit(ScanEvent{Status: w.Status})
		return nil
	case models.CallbackRoomList:
		return d.handleRoomList(cb.Msg)
	case models.CallbackContactOrRoom:
		var probe struct {
			Number  string `json:"number"`
			Account string `json:"account"`
		}
		if err := json.Unmarshal([]byte(cb.Msg), &probe); err != nil {
			return fmt.Errorf("callback-send 182: %w", err)
		}
		if models.IsRoomID(probe.Number) {
			return d.handleRoomInfo(cb.Msg)
		}
		return d.handleContactInfo(cb.Msg)
	default:
		d.logger.Debug().Int("type", int(cb.Type)).Msg("unhandled callback variant")
		metrics.FramesDropped.WithLabelValues("unhandled_callback").Inc()
		return nil
	}
}
