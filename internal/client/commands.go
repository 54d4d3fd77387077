package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ysmood/gson"
)

// The command bridge. Every public operation follows the same shape:
// validate host-side arguments, evaluate one expression inside the page
// using the injected helpers, decode the raw result into the external type.
// No retries, no timeouts beyond ctx, and no serialization of concurrent
// commands; the page's own consistency is what holds that together.

func decodeInto(res gson.JSON, v interface{}) error {
	raw, err := res.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal eval result: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

// contentDescriptor is the wire shape handed to the injected send helper.
type contentDescriptor struct {
	Kind        string  `json:"kind"`
	Body        string  `json:"body,omitempty"`
	MimeType    string  `json:"mimetype,omitempty"`
	Data        string  `json:"data,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Caption     string  `json:"caption,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
	Description string  `json:"description,omitempty"`
}

type sendOptionsDescriptor struct {
	SendSeen        bool     `json:"sendSeen"`
	QuotedMessageID string   `json:"quotedMessageId,omitempty"`
	Mentions        []string `json:"mentions,omitempty"`
}

func (c *Client) buildContent(content MessageContent) (contentDescriptor, error) {
	modes := 0
	if content.Text != "" {
		modes++
	}
	if content.Media != nil {
		modes++
	}
	if content.Location != nil {
		modes++
	}
	if modes != 1 {
		return contentDescriptor{}, ErrAmbiguousContent
	}

	switch {
	case content.Media != nil:
		return contentDescriptor{
			Kind:     "media",
			MimeType: content.Media.MimeType,
			Data:     content.Media.Data,
			Filename: content.Media.Filename,
			Caption:  content.Caption,
		}, nil
	case content.Location != nil:
		return contentDescriptor{
			Kind:        "location",
			Lat:         content.Location.Latitude,
			Lng:         content.Location.Longitude,
			Description: content.Location.Description,
		}, nil
	default:
		return contentDescriptor{Kind: "text", Body: content.Text}, nil
	}
}

// SendMessage sends content to a chat, materializing the destination if the
// chat list doesn't hold it yet (see inject.Helpers for the borrow path).
// Returns ErrNoChatAvailable when the page has no chat whose identity could
// carry the send, a structural limitation rather than a transport failure.
func (c *Client) SendMessage(ctx context.Context, chatID string, content MessageContent, opts *SendOptions) (*Message, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	if chatID == "" {
		return nil, fmt.Errorf("send: empty chat id")
	}

	desc, err := c.buildContent(content)
	if err != nil {
		return nil, err
	}

	optDesc := sendOptionsDescriptor{SendSeen: c.opts.DefaultSendSeen}
	if opts != nil {
		if opts.SendSeen != nil {
			optDesc.SendSeen = *opts.SendSeen
		}
		optDesc.QuotedMessageID = opts.QuotedMessageID
		optDesc.Mentions = opts.Mentions
	}

	res, err := c.rt.Eval(ctx,
		`(chatId, content, options) => window.WBJS.sendMessage(chatId, content, options)`,
		chatID, desc, optDesc)
	if err != nil {
		return nil, err
	}
	if res.Get("wbError").Str() == "no_chat_available" {
		return nil, ErrNoChatAvailable
	}

	var msg Message
	if err := decodeInto(res, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetChats returns every chat in the store's chat list.
func (c *Client) GetChats(ctx context.Context) ([]Chat, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `() => window.WBJS.getChats()`)
	if err != nil {
		return nil, err
	}
	var chats []Chat
	if err := decodeInto(res, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChatByID returns one chat.
func (c *Client) GetChatByID(ctx context.Context, id string) (*Chat, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `(id) => window.WBJS.getChat(id)`, id)
	if err != nil {
		return nil, err
	}
	if res.Nil() {
		return nil, fmt.Errorf("chat %s not found", id)
	}
	var chat Chat
	if err := decodeInto(res, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetContacts returns every known contact.
func (c *Client) GetContacts(ctx context.Context) ([]Contact, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `() => window.WBJS.getContacts()`)
	if err != nil {
		return nil, err
	}
	var contacts []Contact
	if err := decodeInto(res, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// GetContactByID returns one contact.
func (c *Client) GetContactByID(ctx context.Context, id string) (*Contact, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `(id) => window.WBJS.getContact(id)`, id)
	if err != nil {
		return nil, err
	}
	if res.Nil() {
		return nil, fmt.Errorf("contact %s not found", id)
	}
	var contact Contact
	if err := decodeInto(res, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// AcceptInvite joins a group via invite code and returns the chat ID.
func (c *Client) AcceptInvite(ctx context.Context, code string) (string, error) {
	if !c.isReady() {
		return "", ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `async (code) => {
		const result = await window.Store.Invite.sendJoinGroupViaInvite(code);
		return result && (result._serialized || '' + result);
	}`, code)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

// SetStatus replaces the local user's status/about text.
func (c *Client) SetStatus(ctx context.Context, status string) error {
	if !c.isReady() {
		return ErrNotReady
	}
	_, err := c.rt.Eval(ctx, `(status) => window.Store.Wap.sendSetStatus(status)`, status)
	return err
}

// GetState asks the page for its current connection state.
func (c *Client) GetState(ctx context.Context) (ConnectionState, error) {
	if !c.isReady() {
		return StateUnknown, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `() => window.Store.AppState.state`)
	if err != nil {
		return StateUnknown, err
	}
	return ConnectionState(res.Str()), nil
}

// ResetState forces the remote watchdog timer to fire immediately, which
// makes the app re-evaluate a wedged connection instead of idling in it.
func (c *Client) ResetState(ctx context.Context) error {
	if !c.isReady() {
		return ErrNotReady
	}
	_, err := c.rt.Eval(ctx, `() => {
		window.Store.AppState.phoneWatchdog.shiftTimer.forceRunNow();
	}`)
	return err
}

// ArchiveChat archives a chat and returns the resulting archive flag.
func (c *Client) ArchiveChat(ctx context.Context, id string) (bool, error) {
	return c.setArchive(ctx, id, true)
}

// UnarchiveChat unarchives a chat and returns the resulting archive flag.
func (c *Client) UnarchiveChat(ctx context.Context, id string) (bool, error) {
	return c.setArchive(ctx, id, false)
}

func (c *Client) setArchive(ctx context.Context, id string, archive bool) (bool, error) {
	if !c.isReady() {
		return false, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `async (id, archive) => {
		const chat = window.Store.Chat.get(id);
		if (!chat) throw new Error('chat not found: ' + id);
		await window.Store.Cmd.archiveChat(chat, archive);
		return chat.archive === true;
	}`, id, archive)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

// SendSeen marks a chat as seen.
func (c *Client) SendSeen(ctx context.Context, chatID string) (bool, error) {
	if !c.isReady() {
		return false, ErrNotReady
	}
	res, err := c.rt.Eval(ctx, `(id) => window.WBJS.sendSeen(id)`, chatID)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}
