package models

// User is the persisted learner record
type User struct {
	ID                  string               `json:"id" bson:"-"`
	Username            string               `json:"username" bson:"username"`
	Points              int                  `json:"points" bson:"points"`
	Timezone            string               `json:"timezone,omitempty" bson:"timezone,omitempty"`
	CurrentChallengeID  string               `json:"currentChallengeId,omitempty" bson:"currentChallengeId,omitempty"`
	CompletedChallenges []CompletedChallenge `json:"completedChallenges" bson:"completedChallenges"`
	ProgressTimestamps  []int64              `json:"progressTimestamps" bson:"progressTimestamps"`
}

// FindCompleted returns the first completion recorded for challengeID
func (u *User) FindCompleted(challengeID string) (CompletedChallenge, bool) {
	for _, c := range u.CompletedChallenges {
		if c.ID == challengeID {
			return c, true
		}
	}
	return CompletedChallenge{}, false
}

// PointsEntry is one row of the points standings
type PointsEntry struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Points   float64 `json:"points"`
	Rank     int64   `json:"rank,omitempty"`
}
