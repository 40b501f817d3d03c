// Package api is the outbound command surface: everything the local account
// can do, expressed as unary gateway calls. Commands whose results arrive as
// stream frames rather than call replies go through the correlation registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/correlation"
	"github.com/chatbridge/chatbridge/internal/gateway"
	"github.com/chatbridge/chatbridge/internal/models"
)

// Caller issues one unary backend command. Satisfied by the gateway.
type Caller interface {
	Call(ctx context.Context, apiName string, data any) (json.RawMessage, error)
}

// BlobUploader stores a binary attachment and returns a URL the backend can
// fetch it from. Message payloads carry URLs, never bytes.
type BlobUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Client is the outbound command client. Zero-value AwaitTimeout uses the
// registry default.
type Client struct {
	logger       zerolog.Logger
	caller       Caller
	registry     *correlation.Registry
	uploader     BlobUploader
	awaitTimeout time.Duration
}

// New builds a command client. uploader may be nil; blob sends then fail
// with ErrNoUploader.
func New(logger zerolog.Logger, caller Caller, registry *correlation.Registry, uploader BlobUploader) *Client {
	return &Client{
		logger:       logger.With().Str("component", "api").Logger(),
		caller:       caller,
		registry:     registry,
		uploader:     uploader,
		awaitTimeout: correlation.DefaultAwaitTimeout,
	}
}

// ErrNoUploader reports a blob send without a configured uploader.
var ErrNoUploader = errors.New("api: no blob uploader configured")

func (c *Client) callAndAwait(ctx context.Context, key, apiName string, data any) (json.RawMessage, error) {
	ch, cancel := c.registry.Register(key)
	defer cancel()

	if _, err := c.caller.Call(ctx, apiName, data); err != nil {
		return nil, err
	}

	select {
	case raw := <-ch:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.awaitTimeout):
		return nil, fmt.Errorf("%w: %s", correlation.ErrAwaitTimeout, apiName)
	}
}

// SendText sends a text message. mentions lists room member ids to tag; the
// backend renders them into the message body.
func (c *Client) SendText(ctx context.Context, to, text string, mentions []string) error {
	payload := map[string]any{
		"to_account": to,
		"content":    text,
	}
	if len(mentions) > 0 {
		payload["at_list"] = strings.Join(mentions, ",")
	}
	_, err := c.caller.Call(ctx, "sendText", payload)
	return err
}

// SendURLLink sends a link card.
func (c *Client) SendURLLink(ctx context.Context, to string, link models.URLLink) error {
	_, err := c.caller.Call(ctx, "sendUrlLink", map[string]string{
		"to_account":  to,
		"title":       link.Title,
		"description": link.Description,
		"thumb":       link.ThumbnailURL,
		"url":         link.URL,
	})
	return err
}

// SendContactCard shares a contact as a card message.
func (c *Client) SendContactCard(ctx context.Context, to, contactID string) error {
	_, err := c.caller.Call(ctx, "sendContactCard", map[string]string{
		"to_account": to,
		"account":    contactID,
	})
	return err
}

// SendAttachment sends an already uploaded file by URL.
func (c *Client) SendAttachment(ctx context.Context, to, fileURL, filename string) error {
	_, err := c.caller.Call(ctx, "sendFile", map[string]string{
		"to_account": to,
		"url":        fileURL,
		"file_name":  filename,
	})
	return err
}

// SendBlob uploads the attachment and sends it in one step.
func (c *Client) SendBlob(ctx context.Context, to, filename string, r io.Reader) error {
	if c.uploader == nil {
		return ErrNoUploader
	}
	url, err := c.uploader.Upload(ctx, filename, r)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	return c.SendAttachment(ctx, to, url, filename)
}

// CreateRoom creates a room with the given members and returns the new room
// id once the creation notification arrives.
func (c *Client) CreateRoom(ctx context.Context, memberIDs []string) (string, error) {
	raw, err := c.callAndAwait(ctx, correlation.RoomCreateKey(), "createRoom", map[string]string{
		"accounts": strings.Join(memberIDs, ","),
	})
	if err != nil {
		return "", err
	}
	var w models.WireRoomCreate
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decode room creation: %w", err)
	}
	if w.Account == "" {
		return "", fmt.Errorf("room creation reply carried no room id")
	}
	return w.Account, nil
}

// ModifyRoomTopic renames a room.
func (c *Client) ModifyRoomTopic(ctx context.Context, roomID, topic string) error {
	_, err := c.caller.Call(ctx, "setRoomName", map[string]string{
		"account": roomID,
		"name":    topic,
	})
	return err
}

// RoomAdd adds a contact to a room. Rooms past the direct-add size limit
// reject the add; those fall back to an invitation.
func (c *Client) RoomAdd(ctx context.Context, roomID, contactID string) error {
	_, err := c.caller.Call(ctx, "addRoomMember", map[string]string{
		"g_number": roomID,
		"account":  contactID,
	})
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		c.logger.Info().Str("room", roomID).Str("contact", contactID).
			Msg("direct add rejected, sending invitation")
		_, err = c.caller.Call(ctx, "sendRoomInvite", map[string]string{
			"g_number": roomID,
			"account":  contactID,
		})
	}
	return err
}

// RoomDel removes a member from a room the account owns.
func (c *Client) RoomDel(ctx context.Context, roomID, contactID string) error {
	_, err := c.caller.Call(ctx, "delRoomMember", map[string]string{
		"g_number": roomID,
		"account":  contactID,
	})
	return err
}

// RoomQuit leaves a room.
func (c *Client) RoomQuit(ctx context.Context, roomID string) error {
	_, err := c.caller.Call(ctx, "quitRoom", map[string]string{"account": roomID})
	return err
}

// RoomQRCode fetches the join QR code for a room.
func (c *Client) RoomQRCode(ctx context.Context, roomID string) (string, error) {
	raw, err := c.callAndAwait(ctx, correlation.RoomQRCodeKey(roomID), "getRoomQRCode", map[string]string{
		"account": roomID,
	})
	if err != nil {
		return "", err
	}
	var w models.WireRoomQRCode
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decode room qrcode: %w", err)
	}
	return w.QRCode, nil
}

// SetAnnouncement posts a room announcement.
func (c *Client) SetAnnouncement(ctx context.Context, roomID, text string) error {
	_, err := c.caller.Call(ctx, "setRoomAnnouncement", map[string]string{
		"account": roomID,
		"content": text,
	})
	return err
}

// SetContactAlias sets the local remark name for a contact.
func (c *Client) SetContactAlias(ctx context.Context, contactID, remark string) error {
	_, err := c.caller.Call(ctx, "setContactRemark", map[string]string{
		"account": contactID,
		"remark":  remark,
	})
	return err
}

// AddFriend sends a friend request by phone number and returns the target
// account id from the pre-accept notification.
func (c *Client) AddFriend(ctx context.Context, selfAccount string, phone int64, hello string) (string, error) {
	raw, err := c.callAndAwait(ctx, correlation.AddFriendKey(selfAccount, phone), "addFriend", map[string]any{
		"phone":     phone,
		"check_msg": hello,
	})
	if err != nil {
		return "", err
	}
	var w models.WireAddFriendBeforeAccept
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decode friend request notification: %w", err)
	}
	return w.ToAccount, nil
}

// AcceptFriend accepts an inbound friend request using its verification
// ticket.
func (c *Client) AcceptFriend(ctx context.Context, contactID, ticket string) error {
	_, err := c.caller.Call(ctx, "acceptFriend", map[string]string{
		"account":        contactID,
		"encodeUserName": ticket,
	})
	return err
}

// DelFriend removes a friendship.
func (c *Client) DelFriend(ctx context.Context, contactID string) error {
	_, err := c.caller.Call(ctx, "delFriend", map[string]string{"account": contactID})
	return err
}

// RequestLoginQRCode asks the backend to issue a login QR code; the code
// itself arrives as a scan frame.
func (c *Client) RequestLoginQRCode(ctx context.Context) error {
	_, err := c.caller.Call(ctx, "getLoginQRCode", nil)
	return err
}

// Logout ends the session on the backend side.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.caller.Call(ctx, "logout", nil)
	return err
}
