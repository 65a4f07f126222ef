package conversation

// Kind classifies an inbound event at the transport boundary.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindLocation Kind = "location"
	KindCommand  Kind = "command"
	KindOther    Kind = "other"
)

// Location is a structured geolocation payload.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Event is one inbound message from a user.
type Event struct {
	UserID   string    `json:"userId"`
	Kind     Kind      `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Command  string    `json:"command,omitempty"`
	Args     string    `json:"args,omitempty"`
	FileID   string    `json:"fileId,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Location *Location `json:"location,omitempty"`
	Language string    `json:"language,omitempty"`
}

// ReplyKind selects how a transport renders a reply.
type ReplyKind string

const (
	ReplyText     ReplyKind = "text"
	ReplyChoice   ReplyKind = "choice"
	ReplyDocument ReplyKind = "document"
)

// Document is a file attachment sent back to the user.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Reply is an outbound directive produced by the engine.
type Reply struct {
	Kind           ReplyKind `json:"kind"`
	Text           string    `json:"text,omitempty"`
	Choices        []string  `json:"choices,omitempty"`
	Document       *Document `json:"document,omitempty"`
	RemoveKeyboard bool      `json:"removeKeyboard,omitempty"`
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// ChoiceReply builds a prompt with a one-shot keyboard.
func ChoiceReply(text string, choices ...string) Reply {
	return Reply{Kind: ReplyChoice, Text: text, Choices: choices}
}
