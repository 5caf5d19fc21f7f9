package completion

import (
	"time"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// Merge is the in-memory result of folding one completion into a user record
type Merge struct {
	Update           models.UserUpdate
	AlreadyCompleted bool
	// CompletedDate is the date stored after the merge: the first one on resubmission
	CompletedDate int64
	// Points is the total reported to the caller; it is not part of Update
	Points int
}

// BuildUserUpdate computes the single update for user given an incoming
// completion. A resubmitted challenge keeps its first completedDate and does
// not advance the progress log. The timezone is only set when the user has
// none (or UTC) and the client sent a non-UTC zone.
func BuildUserUpdate(user *models.User, completion models.CompletedChallenge, timezone string, now time.Time) Merge {
	existing, alreadyCompleted := user.FindCompleted(completion.ID)

	final := completion
	var progress *int64
	if alreadyCompleted {
		final.CompletedDate = existing.CompletedDate
	} else {
		ts := now.UnixMilli()
		progress = &ts
	}

	update := models.UserUpdate{
		Completion:        final,
		ProgressTimestamp: progress,
	}

	if timezone != "" && timezone != "UTC" && (user.Timezone == "" || user.Timezone == "UTC") {
		update.Timezone = timezone
	}

	points := user.Points
	if !alreadyCompleted {
		points++
	}

	return Merge{
		Update:           update,
		AlreadyCompleted: alreadyCompleted,
		CompletedDate:    final.CompletedDate,
		Points:           points,
	}
}
