package model

// AwaitingEvent is the "chat awaiting processing" notification. It is
// published once per appended user message and may be delivered more than
// once.
type AwaitingEvent struct {
	OrganizationID string `json:"organizationId"`
	DocumentID     string `json:"documentId"`
	ChatID         string `json:"chatId"`
	UserID         string `json:"userId"`
}

func (e AwaitingEvent) Valid() bool {
	return e.OrganizationID != "" && e.DocumentID != "" && e.ChatID != "" && e.UserID != ""
}
