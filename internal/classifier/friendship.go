package classifier

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/chatbridge/chatbridge/internal/models"
)

var friendshipConfirmPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^You have added (.+) as your WeChat contact\. Start chatting!$`),
	regexp.MustCompile(`^你已添加了(.+)，现在可以开始聊天了。$`),
	regexp.MustCompile(`I've accepted your friend request\. Now let's chat!$`),
	regexp.MustCompile(`^(.+) just added you to his/her contacts list\. Send a message to him/her now!$`),
	regexp.MustCompile(`^(.+)刚刚把你添加到通讯录，现在可以开始聊天了。$`),
	regexp.MustCompile(`^我通过了你的朋友验证请求，现在我们可以开始聊天了$`),
}

var friendshipVerifyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+) has enabled Friend Confirmation`),
	regexp.MustCompile(`^(.+)开启了朋友验证，你还不是他（她）朋友。请先发送朋友验证请求，对方验证通过后，才能聊天。`),
}

// ParseFriendshipConfirm detects the "request accepted" system text and
// returns the confirm event, or nil.
func ParseFriendshipConfirm(msg *models.MessageEnvelope) *models.Friendship {
	if msg.Content == "" || matchFirst(friendshipConfirmPatterns, msg.Content) == nil {
		return nil
	}
	return &models.Friendship{
		ID:        msg.ID,
		Type:      models.FriendshipConfirm,
		ContactID: peerID(msg),
		Timestamp: time.Now().Unix(),
	}
}

// ParseFriendshipVerify detects the "verification required" system text and
// returns the verify event, or nil.
func ParseFriendshipVerify(msg *models.MessageEnvelope) *models.Friendship {
	if msg.Content == "" || matchFirst(friendshipVerifyPatterns, msg.Content) == nil {
		return nil
	}
	return &models.Friendship{
		ID:        msg.ID,
		Type:      models.FriendshipVerify,
		ContactID: peerID(msg),
		Timestamp: time.Now().Unix(),
	}
}

func peerID(msg *models.MessageEnvelope) string {
	if msg.PeerAlias != "" {
		return msg.PeerAlias
	}
	return msg.PeerAccount
}

// ParseFriendRequest converts an inbound new-friend payload into a receive
// event with a freshly minted id.
func ParseFriendRequest(w *models.WireFriendRequest) *models.Friendship {
	contactID := w.AccountAlias
	if contactID == "" {
		contactID = w.Account
	}
	return &models.Friendship{
		ID:        uuid.NewString(),
		Type:      models.FriendshipReceive,
		ContactID: contactID,
		Hello:     w.CheckMsg,
		Stranger:  w.EncodeUserName,
		Ticket:    w.EncodeUserName,
		Timestamp: time.Now().Unix(),
	}
}

// ParseNewFriendContact extracts the contact sketch embedded in a typeless
// new-friend message, or nil when the data does not decode.
func ParseNewFriendContact(w *models.WireNewFriendMessage) *models.Contact {
	var info struct {
		Name    string `json:"name"`
		Account string `json:"account"`
		Sex     string `json:"sex"`
		Area    string `json:"area"`
		Thumb   string `json:"thumb"`
	}
	if err := json.Unmarshal([]byte(w.Data), &info); err != nil {
		return nil
	}
	return &models.Contact{
		Account:      info.Account,
		AccountAlias: info.Account,
		Name:         info.Name,
		Gender:       models.ParseGender(info.Sex),
		Avatar:       info.Thumb,
	}
}
