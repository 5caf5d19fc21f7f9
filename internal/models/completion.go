package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChallengeType distinguishes challenge formats
type ChallengeType int

const (
	ChallengeHTML            ChallengeType = 0
	ChallengeJS              ChallengeType = 1
	ChallengeBackend         ChallengeType = 2
	ChallengeFrontEndProject ChallengeType = 3
	ChallengeBackEndProject  ChallengeType = 4 // basejump, requires a github link
	ChallengeBonfire         ChallengeType = 5
	ChallengeModern          ChallengeType = 6
	ChallengeStep            ChallengeType = 7
	ChallengeQuiz            ChallengeType = 8
	ChallengeVideo           ChallengeType = 9
)

// CompletedChallenge is one finished challenge in a user's history
type CompletedChallenge struct {
	ID            string          `json:"id" bson:"id"`
	CompletedDate int64           `json:"completedDate" bson:"completedDate"` // epoch ms
	Solution      string          `json:"solution,omitempty" bson:"solution,omitempty"`
	GithubLink    string          `json:"githubLink,omitempty" bson:"githubLink,omitempty"`
	Files         map[string]File `json:"files,omitempty" bson:"files,omitempty"`
	ChallengeType *int            `json:"challengeType,omitempty" bson:"challengeType,omitempty"`
}

// File is a submitted source artifact
type File struct {
	Key      string `json:"key,omitempty" bson:"key,omitempty"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"`
	Ext      string `json:"ext,omitempty" bson:"ext,omitempty"`
	Contents string `json:"contents" bson:"contents"`
	Head     string `json:"head,omitempty" bson:"head,omitempty"`
	Tail     string `json:"tail,omitempty" bson:"tail,omitempty"`
}

// UnmarshalJSON accepts either a file object or a bare string holding the contents
func (f *File) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var contents string
		if err := json.Unmarshal(trimmed, &contents); err != nil {
			return err
		}
		*f = File{Contents: contents}
		return nil
	}

	type plain File
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return fmt.Errorf("file must be a string or an object: %w", err)
	}
	*f = File(p)
	return nil
}

// UserUpdate is the single atomic merge applied to a user record
type UserUpdate struct {
	// Completion is pushed into the completed challenges collection
	Completion CompletedChallenge
	// ProgressTimestamp is appended to the progress log when set
	ProgressTimestamp *int64
	// Timezone replaces the stored timezone when non-empty
	Timezone string
}
