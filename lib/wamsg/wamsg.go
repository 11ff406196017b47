// Package wamsg provides signal extractors for WhatsApp messages.
// All functions are pure and nil-safe: a message without the requested
// content yields an empty string or an empty slice, never an error.
package wamsg

import (
	waProto "go.mau.fi/whatsmeow/binary/proto"
)

// MediaKind is a media classification of a message.
type MediaKind string

// media kinds, in detection priority order
const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
	MediaLocation MediaKind = "location"
	MediaContact  MediaKind = "contact"
)

// Text extracts the message text: the first non-empty value among the plain
// conversation text, the extended-text body and media captions.
func Text(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := msg.GetImageMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetVideoMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetDocumentMessage().GetCaption(); t != "" {
		return t
	}
	return ""
}

// MediaType returns the media kind of the message, or MediaNone for text-only
// and unrecognized messages.
func MediaType(msg *waProto.Message) MediaKind {
	switch {
	case msg == nil:
		return MediaNone
	case msg.GetImageMessage() != nil:
		return MediaImage
	case msg.GetVideoMessage() != nil:
		return MediaVideo
	case msg.GetAudioMessage() != nil:
		return MediaAudio
	case msg.GetDocumentMessage() != nil:
		return MediaDocument
	case msg.GetStickerMessage() != nil:
		return MediaSticker
	case msg.GetLocationMessage() != nil, msg.GetLiveLocationMessage() != nil:
		return MediaLocation
	case msg.GetContactMessage() != nil, msg.GetContactsArrayMessage() != nil:
		return MediaContact
	}
	return MediaNone
}

// MessageType returns the message type string. Exactly one type is returned
// per message, picked by a fixed priority list.
func MessageType(msg *waProto.Message) string {
	switch {
	case msg == nil:
		return "unknown"
	case msg.GetConversation() != "", msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetLocationMessage() != nil:
		return "location"
	case msg.GetLiveLocationMessage() != nil:
		return "live_location"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetContactsArrayMessage() != nil:
		return "contacts"
	case msg.GetPollCreationMessage() != nil:
		return "poll"
	case msg.GetReactionMessage() != nil:
		return "reaction"
	}
	return "other"
}

// Mentions returns the structured mentioned-participants list of the message.
// No text scanning is performed.
func Mentions(msg *waProto.Message) []string {
	return msg.GetExtendedTextMessage().GetContextInfo().GetMentionedJID()
}

// contextInfo returns the context info of whatever content variant carries it.
func contextInfo(msg *waProto.Message) *waProto.ContextInfo {
	if msg == nil {
		return nil
	}
	if ci := msg.GetExtendedTextMessage().GetContextInfo(); ci != nil {
		return ci
	}
	if ci := msg.GetImageMessage().GetContextInfo(); ci != nil {
		return ci
	}
	if ci := msg.GetVideoMessage().GetContextInfo(); ci != nil {
		return ci
	}
	if ci := msg.GetDocumentMessage().GetContextInfo(); ci != nil {
		return ci
	}
	if ci := msg.GetAudioMessage().GetContextInfo(); ci != nil {
		return ci
	}
	return nil
}

// IsForwarded reports if the message carries the forwarded flag.
func IsForwarded(msg *waProto.Message) bool {
	return contextInfo(msg).GetIsForwarded()
}

// ForwardCount returns the forwarding score of the message, 0 if not forwarded.
func ForwardCount(msg *waProto.Message) int {
	return int(contextInfo(msg).GetForwardingScore())
}

// HasMedia reports if the message carries downloadable media content.
func HasMedia(msg *waProto.Message) bool {
	if msg == nil {
		return false
	}
	return msg.GetImageMessage() != nil || msg.GetVideoMessage() != nil ||
		msg.GetAudioMessage() != nil || msg.GetDocumentMessage() != nil ||
		msg.GetStickerMessage() != nil
}
