package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want MediaClass
	}{
		{name: "photo", ev: Event{Kind: KindPhoto, FileID: "p1"}, want: MediaImage},
		{name: "video", ev: Event{Kind: KindVideo, FileID: "v1"}, want: MediaVideo},
		{name: "image document", ev: Event{Kind: KindDocument, FileID: "d1", MimeType: "image/heic"}, want: MediaImage},
		{name: "video document", ev: Event{Kind: KindDocument, FileID: "d2", MimeType: "Video/MP4"}, want: MediaVideo},
		{name: "pdf document", ev: Event{Kind: KindDocument, FileID: "d3", MimeType: "application/pdf"}, want: MediaUnsupported},
		{name: "document without mime", ev: Event{Kind: KindDocument, FileID: "d4"}, want: MediaUnsupported},
		{name: "photo without file", ev: Event{Kind: KindPhoto}, want: MediaUnsupported},
		{name: "text", ev: Event{Kind: KindText, Text: "hi"}, want: MediaNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev).Class)
		})
	}
}

func TestMediaRefConversion(t *testing.T) {
	ref, ok := Classify(Event{Kind: KindDocument, FileID: "d1", MimeType: "video/quicktime"}).MediaRef()
	assert.True(t, ok)
	assert.Equal(t, MediaRef{FileID: "d1", Kind: observation.MediaVideo}, ref)

	_, ok = Media{Class: MediaUnsupported}.MediaRef()
	assert.False(t, ok)
}

func TestSessionCloneIsDeep(t *testing.T) {
	name := "Aigerim"
	s := NewSession("42", StateCollectMedia, "ru")
	s.FullName = &name
	s.MediaRefs = append(s.MediaRefs, MediaRef{FileID: "a"})

	c := s.Clone()
	c.MediaRefs[0].FileID = "changed"
	*c.FullName = "other"

	assert.Equal(t, "a", s.MediaRefs[0].FileID)
	assert.Equal(t, "Aigerim", *s.FullName)
}
