package models

import "time"

// Message is a single inbound communication retained in the history store.
type Message struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Text        string    `json:"text"`
	DisplayTime string    `json:"displayTime,omitempty"` // platform timestamp as rendered, opaque
	ObservedAt  time.Time `json:"observedAt"`
	IsNew       bool      `json:"isNew"`
}

// Candidate is an extracted message that has not been deduplicated yet.
type Candidate struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Text        string `json:"text"`
	DisplayTime string `json:"displayTime,omitempty"`
	IsNew       bool   `json:"isNew"`
	Position    int    `json:"position"`
}

// ToMessage stamps the candidate with its ingestion time.
func (c Candidate) ToMessage(observedAt time.Time) Message {
	return Message{
		ID:          c.ID,
		Sender:      c.Sender,
		Text:        c.Text,
		DisplayTime: c.DisplayTime,
		ObservedAt:  observedAt,
		IsNew:       c.IsNew,
	}
}
