package whatsapp

import (
	"encoding/json"
	"strings"
	"time"

	"agendazap/channels"
	"agendazap/models"
)

// audioPlaceholder is the fixed display string for voice notes; the raw
// payload stays with the provider.
const audioPlaceholder = "[audio message]"

type messagePayload struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName         string `json:"pushName"`
	MessageType      string `json:"messageType"`
	MessageTimestamp int64  `json:"messageTimestamp"`
	Message          struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage struct {
			Caption  string `json:"caption"`
			Mimetype string `json:"mimetype"`
		} `json:"imageMessage"`
		AudioMessage struct {
			Seconds int `json:"seconds"`
		} `json:"audioMessage"`
		DocumentMessage struct {
			FileName string `json:"fileName"`
			Caption  string `json:"caption"`
		} `json:"documentMessage"`
	} `json:"message"`
}

// Processor normalizes gateway message payloads into the local typed form:
// text passes through, image/document reduce to caption or filename, audio
// becomes a fixed placeholder.
type Processor struct{}

var _ channels.MessageProcessor = (*Processor)(nil)

func (Processor) ParseInbound(data json.RawMessage) (*channels.InboundMessage, error) {
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, channels.WrapMissingData("payload")
	}

	contact := contactFromJid(p.Key.RemoteJid)
	if contact == "" {
		return nil, channels.WrapMissingData("remoteJid")
	}
	if strings.TrimSpace(p.Key.ID) == "" {
		return nil, channels.WrapMissingData("message id")
	}

	out := &channels.InboundMessage{
		ExternalID:  strings.TrimSpace(p.Key.ID),
		ContactRef:  contact,
		ContactName: strings.TrimSpace(p.PushName),
		FromMe:      p.Key.FromMe,
	}
	if p.MessageTimestamp > 0 {
		out.Timestamp = time.Unix(p.MessageTimestamp, 0)
	}

	switch {
	case strings.TrimSpace(p.Message.Conversation) != "":
		out.ContentType = models.MESSAGE_CONTENT_TEXT
		out.ContentText = strings.TrimSpace(p.Message.Conversation)
	case strings.TrimSpace(p.Message.ExtendedTextMessage.Text) != "":
		out.ContentType = models.MESSAGE_CONTENT_TEXT
		out.ContentText = strings.TrimSpace(p.Message.ExtendedTextMessage.Text)
	case p.Message.AudioMessage.Seconds > 0 || strings.EqualFold(p.MessageType, "audioMessage"):
		out.ContentType = models.MESSAGE_CONTENT_AUDIO
		out.ContentText = audioPlaceholder
	case p.Message.DocumentMessage.FileName != "" || p.Message.DocumentMessage.Caption != "":
		out.ContentType = models.MESSAGE_CONTENT_DOCUMENT
		out.ContentText = firstNonEmpty(p.Message.DocumentMessage.Caption, p.Message.DocumentMessage.FileName)
	case p.Message.ImageMessage.Caption != "" || p.Message.ImageMessage.Mimetype != "":
		out.ContentType = models.MESSAGE_CONTENT_IMAGE
		out.ContentText = firstNonEmpty(p.Message.ImageMessage.Caption, "[image]")
	default:
		out.ContentType = models.MESSAGE_CONTENT_TEXT
		out.ContentText = ""
	}

	return out, nil
}

// contactFromJid strips the WhatsApp domain from a remote jid
// ("5511999999999@s.whatsapp.net" -> "5511999999999").
func contactFromJid(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return ""
	}
	if at := strings.Index(jid, "@"); at >= 0 {
		jid = jid[:at]
	}
	return jid
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
