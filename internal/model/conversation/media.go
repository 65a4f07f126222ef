package conversation

import (
	"strings"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

// MediaClass is the closed set of attachment shapes the engine understands.
type MediaClass int

const (
	MediaNone MediaClass = iota
	MediaImage
	MediaVideo
	MediaUnsupported
)

// Media is the classified attachment carried by an event.
type Media struct {
	Class MediaClass
	Ref   string
}

// Classify maps a raw event to a media variant. Documents are accepted only
// when their declared MIME type is an image or a video.
func Classify(ev Event) Media {
	switch ev.Kind {
	case KindPhoto:
		if ev.FileID == "" {
			return Media{Class: MediaUnsupported}
		}
		return Media{Class: MediaImage, Ref: ev.FileID}
	case KindVideo:
		if ev.FileID == "" {
			return Media{Class: MediaUnsupported}
		}
		return Media{Class: MediaVideo, Ref: ev.FileID}
	case KindDocument:
		mime := strings.ToLower(strings.TrimSpace(ev.MimeType))
		switch {
		case ev.FileID == "":
			return Media{Class: MediaUnsupported}
		case strings.HasPrefix(mime, "image"):
			return Media{Class: MediaImage, Ref: ev.FileID}
		case strings.HasPrefix(mime, "video"):
			return Media{Class: MediaVideo, Ref: ev.FileID}
		default:
			return Media{Class: MediaUnsupported}
		}
	default:
		return Media{Class: MediaNone}
	}
}

// MediaRef converts an accepted media variant to a session reference.
func (m Media) MediaRef() (MediaRef, bool) {
	switch m.Class {
	case MediaImage:
		return MediaRef{FileID: m.Ref, Kind: observation.MediaImage}, true
	case MediaVideo:
		return MediaRef{FileID: m.Ref, Kind: observation.MediaVideo}, true
	default:
		return MediaRef{}, false
	}
}
