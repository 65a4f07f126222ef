package conversation

import (
	"time"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

// State is the position of a user inside the collection dialogue.
type State string

const (
	StateStart         State = "START"
	StateConsent       State = "CONSENT"
	StateFullName      State = "FULLNAME"
	StateCollectMedia  State = "COLLECT_MEDIA"
	StateAwaitDate     State = "AWAIT_DATE"
	StateAwaitLocation State = "AWAIT_LOCATION"
	StateNextOrDone    State = "NEXT_OR_DONE"
	StateEnd           State = "END"
)

// Terminal reports whether the dialogue is over for this state.
func (s State) Terminal() bool {
	return s == StateEnd
}

// MediaRef is an accepted attachment waiting to be turned into an observation.
type MediaRef struct {
	FileID string                `json:"fileId"`
	Kind   observation.MediaKind `json:"kind"`
}

// Session captures the transient per-user collection state.
// State is the source of truth for which optional fields are meaningful.
type Session struct {
	UserID       string     `json:"userId"`
	State        State      `json:"state"`
	ConsentGiven bool       `json:"consentGiven"`
	FullName     *string    `json:"fullName,omitempty"`
	MediaRefs    []MediaRef `json:"mediaRefs"`
	ObservedAt   *time.Time `json:"observedAt,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Address      *string    `json:"address,omitempty"`
	Language     string     `json:"language"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewSession returns an empty session for the user at the given state.
func NewSession(userID string, state State, language string) Session {
	return Session{
		UserID:    userID,
		State:     state,
		MediaRefs: []MediaRef{},
		Language:  language,
	}
}

// Clone returns a deep copy so callers can replace sessions wholesale.
func (s Session) Clone() Session {
	out := s
	out.MediaRefs = append([]MediaRef{}, s.MediaRefs...)
	out.FullName = clonePtr(s.FullName)
	out.ObservedAt = clonePtr(s.ObservedAt)
	out.Latitude = clonePtr(s.Latitude)
	out.Longitude = clonePtr(s.Longitude)
	out.Address = clonePtr(s.Address)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
