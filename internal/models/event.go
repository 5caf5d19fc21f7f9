package models

// CompletionEvent is published after a completion has been persisted
type CompletionEvent struct {
	EventID          string `json:"eventId"`
	UserID           string `json:"userId"`
	ChallengeID      string `json:"challengeId"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
	CompletedDate    int64  `json:"completedDate"`
	Points           int    `json:"points"`
	Timestamp        string `json:"timestamp"`
}
