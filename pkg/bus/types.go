package bus

// AttachmentRef is an opaque handle to remote binary content. It must be
// resolved through the transport's two-step fetch before use and is never
// cached across events.
type AttachmentRef struct {
	FileID string `json:"file_id"`
}

// DocumentRef describes a document attachment as declared by the platform.
type DocumentRef struct {
	FileID   string `json:"file_id"`
	MIMEType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// InboundEvent is one chat-originated unit of work. It is constructed from
// raw transport data at intake, consumed once by the dispatcher, and never
// mutated or persisted.
//
// Photos are ordered by ascending resolution; the last entry is the
// highest-resolution variant.
type InboundEvent struct {
	ChatID     int64           `json:"chat_id"`
	SenderName string          `json:"sender_name,omitempty"`
	Text       string          `json:"text,omitempty"`
	Caption    string          `json:"caption,omitempty"`
	Photos     []AttachmentRef `json:"photos,omitempty"`
	Document   *DocumentRef    `json:"document,omitempty"`

	// OtherMedia is set for voice, audio, video and video note payloads,
	// none of which the relay supports.
	OtherMedia bool `json:"other_media,omitempty"`
}

// BestPhoto returns the highest-resolution photo variant, if any.
func (e InboundEvent) BestPhoto() (AttachmentRef, bool) {
	if len(e.Photos) == 0 {
		return AttachmentRef{}, false
	}

	return e.Photos[len(e.Photos)-1], true
}
