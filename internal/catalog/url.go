package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// ErrIncompleteChallenge means a catalog entry cannot be turned into a learn URL
var ErrIncompleteChallenge = errors.New("challenge is missing block or dashed name")

// ChallengeURL returns the learn-site URL for challengeID. An empty or unknown
// id falls back to the first challenge; an empty catalog yields learnURL.
func (l *Loader) ChallengeURL(learnURL, challengeID string) (string, error) {
	challenge := l.Get(challengeID)
	if challenge == nil {
		challenge = l.First()
	}
	if challenge == nil {
		return learnURL, nil
	}

	if challenge.Block == "" || challenge.DashedName == "" {
		id := challengeID
		if id == "" {
			id = "no challenge id found"
		}
		return "", fmt.Errorf("attempted to find %q from %q: %w", challenge.DashedName, id, ErrIncompleteChallenge)
	}

	return fmt.Sprintf("%s/%s/%s/%s", learnURL, slug.Make(challenge.SuperBlock), challenge.Block, challenge.DashedName), nil
}

// LegacyURL maps a legacy /challenges or /map request path to the learn site
func (l *Loader) LegacyURL(learnURL, path string) string {
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]

	if to, ok := l.Migration(last); ok {
		return learnURL + to
	}
	return learnURL
}
