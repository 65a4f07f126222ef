package observation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMediaRequired    = errors.New("observation media reference is required")
	ErrLocationRequired = errors.New("observation requires coordinates or an address")
)

// MediaKind tells what sort of attachment a media reference points to.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Observation is one durable record per attached media item.
type Observation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	MediaRef    string    `json:"mediaRef"`
	MediaKind   MediaKind `json:"mediaKind,omitempty"`
	ObservedAt  time.Time `json:"observedAt"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Address     *string   `json:"address,omitempty"`
	FullName    *string   `json:"fullName,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (o Observation) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// Validate checks the record shape required before insert.
func (o Observation) Validate() error {
	if o.MediaRef == "" {
		return ErrMediaRequired
	}
	if !o.HasCoordinates() && (o.Address == nil || *o.Address == "") {
		return ErrLocationRequired
	}
	return nil
}

// Repository stores finalized observations. Rows are never updated.
type Repository interface {
	Insert(ctx context.Context, o Observation) error
	SelectAll(ctx context.Context) ([]Observation, error)
}
