package inference

import (
	"encoding/base64"
	"strings"

	"jobtrack_server/core/domain"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// Normalize flattens a raw provider message. It never fails: missing headers
// become empty strings, a missing Date header becomes nil, and an undecodable
// body becomes "".
func Normalize(raw *domain.RawMessage) domain.NormalizedMessage {
	var msg domain.NormalizedMessage
	if raw == nil || raw.Payload == nil {
		return msg
	}

	msg.Subject = header(raw.Payload.Headers, "Subject")
	msg.From = header(raw.Payload.Headers, "From")
	if date := header(raw.Payload.Headers, "Date"); date != "" {
		msg.Date = &date
	}
	msg.Body = body(raw.Payload)
	return msg
}

// header does a case-sensitive exact match on the header name.
func header(headers []domain.MessageHeader, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

func body(payload *domain.MessagePart) string {
	if len(payload.Parts) == 0 {
		if payload.Body == nil {
			return ""
		}
		return decodeBody(payload.Body.Data)
	}

	if part := findPart(payload.Parts, mimeTextPlain); part != nil {
		return decodeBody(part.Body.Data)
	}
	if part := findPart(payload.Parts, mimeTextHTML); part != nil {
		return decodeBody(part.Body.Data)
	}
	return ""
}

// findPart walks the MIME tree depth-first and returns the first part of the
// given type that carries body data.
func findPart(parts []*domain.MessagePart, mimeType string) *domain.MessagePart {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
			return part
		}
		if found := findPart(part.Parts, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// decodeBody accepts padded and unpadded base64url.
func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
