package domain

// RawMessage is a provider message with a MIME-structured payload.
type RawMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64 // ms since epoch, provider receipt time
	Snippet      string
	Payload      *MessagePart
}

type MessageHeader struct {
	Name  string
	Value string
}

// MessagePart mirrors one node of the MIME tree. Body.Data is base64url.
type MessagePart struct {
	MimeType string
	Filename string
	Headers  []MessageHeader
	Body     *MessagePartBody
	Parts    []*MessagePart
}

type MessagePartBody struct {
	Data string
	Size int64
}

// NormalizedMessage is the flat view the extractors work on.
type NormalizedMessage struct {
	Subject string
	From    string
	Date    *string
	Body    string
}
