package models

// Wire payload structs decoded from frame data. Field tags follow the backend
// schema verbatim; the demultiplexer converts these into the local records
// above and never lets them escape past the cache boundary.

// WireLogin is the payload of a login frame.
type WireLogin struct {
	Type         int    `json:"type"`
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias"`
	Name         string `json:"name"`
	Thumb        string `json:"thumb"`
	Extend       string `json:"extend"`
	TaskID       string `json:"task_id"`
}

// WireMessage is the payload of a message frame. Private messages carry a
// send direction in Type; room messages carry the room in GNumber/GName.
type WireMessage struct {
	MyAccount      string      `json:"my_account"`
	MyName         string      `json:"my_name"`
	MyAccountAlias string      `json:"my_account_alias,omitempty"`
	ToAccount      string      `json:"to_account"`
	ToAccountAlias string      `json:"to_account_alias,omitempty"`
	ToName         string      `json:"to_name"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	SendTime       int64       `json:"send_time"`
	Type           int         `json:"type,omitempty"` // 1 self sent, 2 contact sent
	FileName       string      `json:"file_name,omitempty"`
	VoiceLen       int         `json:"voice_len,omitempty"`
	GNumber        string      `json:"g_number,omitempty"`
	GName          string      `json:"g_name,omitempty"`
}

// WireContact is one entry of a contact-list page or a contact-info frame.
type WireContact struct {
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias"`
	Area         string `json:"area"`
	Description  string `json:"description"`
	Disturb      string `json:"disturb"`
	FormName     string `json:"form_name"`
	Name         string `json:"name"`
	Sex          string `json:"sex"`
	Thumb        string `json:"thumb"`
	V1           string `json:"v1"`
}

// WireContactPage is the paginated contact-list payload. Pages hold up to 100
// entries; CurrentPage*100 > Total marks the final page.
type WireContactPage struct {
	CurrentPage int           `json:"currentPage"`
	Total       int           `json:"total"`
	Info        []WireContact `json:"info"`
}

// WireRoom is one entry of a room-list payload or a room-info frame.
type WireRoom struct {
	Number  string `json:"number"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Thumb   string `json:"thumb"`
	Disturb int    `json:"disturb"`
}

// WireRoomDetail is the room detail payload carrying owner and members.
type WireRoomDetail struct {
	Code    int                    `json:"code"`
	Msg     string                 `json:"msg"`
	Name    string                 `json:"name"`
	Number  string                 `json:"number"`
	Thumb   string                 `json:"thumb"`
	Disturb int                    `json:"disturb"`
	Author  string                 `json:"author"`
	Data    []WireRoomDetailMember `json:"data"`
}

// WireRoomDetailMember is one member inside a room detail payload.
type WireRoomDetailMember struct {
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias"`
	Name         string `json:"name"`
	Sex          int    `json:"sex"`
	Area         string `json:"area"`
	Thumb        string `json:"thumb"`
	Description  string `json:"description"`
	MyName       string `json:"my_name"`
	GName        string `json:"g_name"`
}

// WireRoomMember is one member inside a room-member frame.
type WireRoomMember struct {
	NickName      string `json:"nickName"`
	DisplayName   string `json:"displayName"`
	BigHeadImgURL string `json:"bigHeadImgUrl"`
	UserName      string `json:"userName"`
	Number        string `json:"number"` // room id
}

// WireRoomMemberList is the room-member frame payload.
type WireRoomMemberList struct {
	MemberList []WireRoomMember `json:"memberList"`
}

// WireRoomChange is the room-join frame payload; Type distinguishes join
// from leave.
type WireRoomChange struct {
	GNumber   string `json:"g_number"`
	Account   string `json:"account"`
	Name      string `json:"name"`
	MyAccount string `json:"my_account"`
	Type      string `json:"type"` // "1" join, "2" leave
}

// WireRoomQRCode is the room-qrcode frame payload.
type WireRoomQRCode struct {
	GroupNickname string `json:"group_nickname"`
	GroupNumber   string `json:"group_number"`
	HeadImg       string `json:"headimg"`
	Owner         string `json:"owner"`
	QRCode        string `json:"qrcode"`
	Type          string `json:"type"`
}

// WireRoomCreate is the room-create frame payload; Account carries the new
// room id.
type WireRoomCreate struct {
	Account        string `json:"account"`
	Extend         string `json:"extend"`
	Name           string `json:"name"`
	HeaderImage    string `json:"headerImage"`
	MyAccount      string `json:"my_account"`
	MyAccountAlias string `json:"my_account_alias"`
}

// WireFriendRequest is the add-friend frame payload: an inbound friend
// request awaiting a decision.
type WireFriendRequest struct {
	Account        string `json:"account"`
	MyAccount      string `json:"my_account"`
	AccountAlias   string `json:"account_alias"`
	EncodeUserName string `json:"encodeUserName"`
	Nickname       string `json:"nickname"`
	Sex            string `json:"sex"`
	Country        string `json:"country"`
	Province       string `json:"province"`
	City           string `json:"city"`
	Sign           string `json:"sign"`
	HeadImgURL     string `json:"headImgUrl"`
	CheckMsg       string `json:"check_msg"`
	Source         string `json:"source"`
}

// WireFriendDeleted is the del-friend frame payload.
type WireFriendDeleted struct {
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias"`
}

// WireAddFriendBeforeAccept is the pre-accept notification for an outbound
// friend request.
type WireAddFriendBeforeAccept struct {
	MyAccount string `json:"my_account"`
	Phone     int64  `json:"phone"`
	ToAccount string `json:"to_account"`
	ToName    string `json:"to_name"`
	ToThumb   string `json:"to_thumb"`
	Type      int    `json:"type"`
}

// WireNewFriendMessage is the new-friend frame payload, seen once a
// friendship is established; Data embeds a JSON contact sketch.
type WireNewFriendMessage struct {
	UID       int64  `json:"uid"`
	MyAccount string `json:"my_account"`
	MyName    string `json:"my_name"`
	ToAccount string `json:"to_account"`
	Data      string `json:"data"`
	Type      int    `json:"type"`
	Time      int64  `json:"time"`
}

// CallbackType is the secondary discriminant inside a callback-send frame.
type CallbackType int

const (
	CallbackSendAddFriend CallbackType = 1
	CallbackWeChatInfo    CallbackType = 2
	CallbackLabelList     CallbackType = 3
	CallbackScanStatus    CallbackType = 4
	CallbackRoomList      CallbackType = 7
	CallbackContactOrRoom CallbackType = 182
)

// WireCallback is the outer shape of a callback-send payload; only Type is
// common to all variants, Msg holds the variant body as embedded JSON.
type WireCallback struct {
	Type CallbackType `json:"type"`
	Msg  string       `json:"msg,omitempty"`
}

// WireScanStatus is the callback-send payload for scan progress updates.
type WireScanStatus struct {
	Status int `json:"status"`
}

// ParseGender maps the backend's string-coded sex field.
func ParseGender(s string) Gender {
	switch s {
	case "1":
		return GenderMale
	case "2":
		return GenderFemale
	}
	return GenderUnknown
}
