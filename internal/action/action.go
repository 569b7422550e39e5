package action

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Kind string

const (
	KindCall     Kind = "call"
	KindMessage  Kind = "message"
	KindNavigate Kind = "navigate"
	KindSearch   Kind = "search"
)

type Channel string

const (
	ChannelPhone     Channel = "phone"
	ChannelSMS       Channel = "sms"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelViber     Channel = "viber"
	ChannelTelegram  Channel = "telegram"
	ChannelMessenger Channel = "messenger"
)

// Offered is the set presented when asking the user to pick a channel.
var Offered = []Channel{ChannelPhone, ChannelWhatsApp, ChannelViber}

// Label is the word the user says for c; ParseChannel accepts it back.
func (c Channel) Label() string {
	if c == ChannelPhone {
		return "telefon"
	}
	return string(c)
}

// OfferedLabels lists Offered for the channel prompt, e.g.
// "telefon, whatsapp, viber".
func OfferedLabels() string {
	labels := make([]string, len(Offered))
	for i, c := range Offered {
		labels[i] = c.Label()
	}
	return strings.Join(labels, ", ")
}

var known = map[Channel]bool{
	ChannelPhone:     true,
	ChannelSMS:       true,
	ChannelWhatsApp:  true,
	ChannelViber:     true,
	ChannelTelegram:  true,
	ChannelMessenger: true,
}

var ErrUnknownChannel = errors.New("unknown channel")

// ParseChannel accepts channel names case-insensitively, plus the Serbian
// "telefon" used in the channel prompt.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if c == "telefon" {
		c = ChannelPhone
	}
	if !known[c] {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
	return c, nil
}

// Executable is a fully resolved action ready for the execution collaborator.
type Executable struct {
	Kind        Kind    `json:"kind"`
	Contact     string  `json:"contact,omitempty"`
	Message     string  `json:"message,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Query       string  `json:"query,omitempty"`
	Channel     Channel `json:"channel,omitempty"`
}

// Executor performs actions. Failures are reported to the user as a notice
// and never abort the conversation.
type Executor interface {
	Execute(ctx context.Context, a Executable) error
}

// Target names what is being opened, for user facing notices.
func (a Executable) Target() string {
	switch a.Kind {
	case KindNavigate:
		return "Google Maps"
	case KindSearch:
		return "Google"
	}
	if a.Channel == "" {
		return string(a.Kind)
	}
	return string(a.Channel)
}

// URL renders the deep link that carries out the action. Contacts are used
// as the phone number as-is.
func (a Executable) URL() (string, error) {
	esc := url.QueryEscape
	switch a.Kind {
	case KindCall:
		if a.Contact == "" {
			return "", errors.New("call without contact")
		}
		switch a.Channel {
		case ChannelWhatsApp:
			return "whatsapp://send?phone=" + esc(a.Contact), nil
		case ChannelViber:
			return "viber://contact?number=" + esc(a.Contact), nil
		case ChannelTelegram:
			return "tg://resolve?phone=" + esc(a.Contact), nil
		case ChannelMessenger:
			return "fb-messenger://user-thread/" + url.PathEscape(a.Contact), nil
		default:
			return "tel:" + a.Contact, nil
		}

	case KindMessage:
		if a.Contact == "" || a.Message == "" {
			return "", errors.New("message without contact or body")
		}
		switch a.Channel {
		case ChannelWhatsApp:
			return "whatsapp://send?phone=" + esc(a.Contact) + "&text=" + esc(a.Message), nil
		case ChannelViber:
			return "viber://forward?text=" + esc(a.Message), nil
		case ChannelTelegram:
			return "tg://msg?text=" + esc(a.Message), nil
		case ChannelMessenger:
			return "fb-messenger://share?link=" + esc(a.Message), nil
		default:
			return "sms:" + a.Contact + "?body=" + esc(a.Message), nil
		}

	case KindNavigate:
		if a.Destination == "" {
			return "", errors.New("navigate without destination")
		}
		return "https://www.google.com/maps/search/?api=1&query=" + esc(a.Destination), nil

	case KindSearch:
		if a.Query == "" {
			return "", errors.New("search without query")
		}
		return "https://www.google.com/search?q=" + esc(a.Query), nil
	}

	return "", fmt.Errorf("unknown action kind %q", a.Kind)
}
