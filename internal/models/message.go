package models

// Message is one entry of a room's append-only chat log.
type Message struct {
	Key        string `json:"key"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	SenderRole Role   `json:"senderRole"`
	Timestamp  int64  `json:"timestamp"`
}
