package models

// ContentType is the backend message content-type tag.
type ContentType int

const (
	ContentText        ContentType = 1
	ContentImage       ContentType = 2
	ContentEmoji       ContentType = 3
	ContentVoice       ContentType = 4
	ContentVideo       ContentType = 5
	ContentFile        ContentType = 6
	ContentPublicCard  ContentType = 7
	ContentURLLink     ContentType = 8
	ContentPrivateCard ContentType = 9
	ContentSystem      ContentType = 10
	ContentMiniApp     ContentType = 11
	ContentLocation    ContentType = 12
	ContentRedPacket   ContentType = 13
	ContentTransfer    ContentType = 14
	ContentGif         ContentType = 15
)

// MessageEnvelope is a message with a locally minted time-ordered id. It is
// held in a bounded, time-expiring cache; eviction is silent.
type MessageEnvelope struct {
	ID           string      `json:"id"` // ULID
	ContentType  ContentType `json:"content_type"`
	Content      string      `json:"content"`
	FileName     string      `json:"file_name,omitempty"`
	VoiceLength  int         `json:"voice_len,omitempty"`
	SelfAccount  string      `json:"self_account"`
	SelfAlias    string      `json:"self_alias,omitempty"`
	SelfName     string      `json:"self_name,omitempty"`
	PeerAccount  string      `json:"peer_account"`
	PeerAlias    string      `json:"peer_alias,omitempty"`
	PeerName     string      `json:"peer_name,omitempty"`
	RoomID       string      `json:"room_id,omitempty"`
	RoomTopic    string      `json:"room_topic,omitempty"`
	SentBySelf   bool        `json:"sent_by_self"`
	Timestamp    int64       `json:"timestamp"`
}

// URLLink is the structured payload of a ContentURLLink message.
type URLLink struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	URL          string `json:"url"`
}
