package client

import "github.com/ysmood/gson"

// ConnectionState is the connection value reported by the remote store.
type ConnectionState string

const (
	StateConnected ConnectionState = "CONNECTED"
	StateOpening   ConnectionState = "OPENING"
	StatePairing   ConnectionState = "PAIRING"
	StateTimeout   ConnectionState = "TIMEOUT"

	// StateUnknown is the state before the first notification arrives.
	StateUnknown ConnectionState = ""
)

// Terminal reports whether a state transition tears the session down. Any
// reported value outside the accepted set (CONFLICT, UNPAIRED, TOS_BLOCK and
// friends) is terminal; the initial unknown state is not a transition.
func (s ConnectionState) Terminal() bool {
	switch s {
	case StateConnected, StateOpening, StatePairing, StateTimeout, StateUnknown:
		return false
	}
	return true
}

// Session holds the authentication tokens captured from the page's local
// storage right after injection. Immutable once captured; persist it to
// reconnect without re-pairing.
type Session struct {
	BrowserID    string `json:"wa_browser_id"`
	SecretBundle string `json:"wa_secret_bundle"`
	Token1       string `json:"wa_token_1"`
	Token2       string `json:"wa_token_2"`
}

// The local-storage keys the session tokens live under.
const (
	storageKeyBrowserID    = "WABrowserId"
	storageKeySecretBundle = "WASecretBundle"
	storageKeyToken1       = "WAToken1"
	storageKeyToken2       = "WAToken2"
)

// Ack is the delivery/read acknowledgment value attached to a sent message.
type Ack int

const (
	AckError  Ack = -1
	AckClock  Ack = 0
	AckSent   Ack = 1
	AckDevice Ack = 2
	AckRead   Ack = 3
	AckPlayed Ack = 4
)

// MessageID is the app's composite message identifier.
type MessageID struct {
	FromMe     bool   `json:"fromMe"`
	Remote     string `json:"remote"`
	ID         string `json:"id"`
	Serialized string `json:"_serialized"`
}

// Message is the typed view of a serialized message record.
type Message struct {
	ID          MessageID `json:"id"`
	Ack         Ack       `json:"ack"`
	Body        string    `json:"body"`
	Type        string    `json:"type"`
	Timestamp   int64     `json:"t"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Author      string    `json:"author"`
	IsForwarded bool      `json:"isForwarded"`
	IsStatus    bool      `json:"isStatus"`
	HasMedia    bool      `json:"hasMedia"`
}

// FromMe reports whether the local user authored the message.
func (m *Message) FromMe() bool { return m.ID.FromMe }

// Chat is the typed view of a serialized chat record.
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	IsReadOnly  bool   `json:"isReadOnly"`
	UnreadCount int    `json:"unreadCount"`
	Timestamp   int64  `json:"t"`
	Archived    bool   `json:"archive"`
	Pinned      bool   `json:"pin"`
}

// Contact is the typed view of a serialized contact record.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Pushname    string `json:"pushname"`
	ShortName   string `json:"shortName"`
	IsBusiness  bool   `json:"isBusiness"`
	IsMe        bool   `json:"isMe"`
	IsUser      bool   `json:"isUser"`
	IsWAContact bool   `json:"isWAContact"`
}

// ClientInfo is the connection/client descriptor fetched during bootstrap.
type ClientInfo struct {
	Pushname string `json:"pushname"`
	Wid      string `json:"wid"`
	Me       string `json:"me"`
	Platform string `json:"platform"`
	Phone    struct {
		WaVersion   string `json:"wa_version"`
		OsVersion   string `json:"os_version"`
		DeviceModel string `json:"device_manufacturer"`
	} `json:"phone"`
}

// MediaAttachment is base64-encoded media content. An attachment replaces
// the text body; a caption rides along separately.
type MediaAttachment struct {
	MimeType string
	Data     string // base64
	Filename string
}

// Location is a location payload; it also replaces the text body.
type Location struct {
	Latitude    float64
	Longitude   float64
	Description string
}

// MessageContent is what a send carries. Exactly one mode must be active:
// plain text, a media attachment, or a location.
type MessageContent struct {
	Text     string
	Media    *MediaAttachment
	Caption  string
	Location *Location
}

// SendOptions tunes a send. The zero value means "mark seen first, nothing
// quoted, no mentions".
type SendOptions struct {
	// SendSeen marks the chat seen before sending. Nil means the client
	// default (true unless configured otherwise).
	SendSeen *bool

	QuotedMessageID string
	Mentions        []string
}

// rawRecord is the opaque serialized snapshot of a message as produced by
// the injection layer. The bridge caches at most one of these.
type rawRecord = gson.JSON
