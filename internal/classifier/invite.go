package classifier

import (
	"encoding/json"
	"regexp"

	"github.com/chatbridge/chatbridge/internal/models"
)

var (
	roomInviteTitlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`邀请你加入群聊`),
		regexp.MustCompile(`Group Chat Invitation`),
	}

	roomInviteBodyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^"(.+)"邀请你加入群聊(.+)，进入可查看详情。`),
		regexp.MustCompile(`^"(.+)" invited you to join the group chat "(.+)"\. Enter to view details\.`),
	}
)

// ParseRoomInvite detects a room-invitation card (JSON content with a title,
// description and join URL) and returns the invitation, or nil.
func ParseRoomInvite(msg *models.MessageEnvelope) *models.RoomInvitation {
	if msg.Content == "" {
		return nil
	}

	var card struct {
		Des      string `json:"des"`
		Thumb    string `json:"thumb"`
		ThumbURL string `json:"thumbUrl"`
		Title    string `json:"title"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &card); err != nil {
		return nil
	}
	if card.Title == "" || card.Des == "" {
		return nil
	}

	if matchFirst(roomInviteTitlePatterns, card.Title) == nil {
		return nil
	}
	m := matchFirst(roomInviteBodyPatterns, card.Des)
	if m == nil {
		return nil
	}

	return &models.RoomInvitation{
		ID:        msg.ID,
		FromUser:  msg.SelfAccount,
		RoomTopic: m[2],
		URL:       card.URL,
		Timestamp: msg.Timestamp,
	}
}

// ParseURLLink decodes the structured payload of a url-link message, or nil
// when the content is not the expected JSON.
func ParseURLLink(msg *models.MessageEnvelope) *models.URLLink {
	if msg.ContentType != models.ContentURLLink {
		return nil
	}
	var raw struct {
		Title    string `json:"title"`
		ThumbURL string `json:"thumbUrl"`
		Des      string `json:"des"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &raw); err != nil {
		return nil
	}
	return &models.URLLink{
		Title:        raw.Title,
		Description:  raw.Des,
		ThumbnailURL: raw.ThumbURL,
		URL:          raw.URL,
	}
}
