// Package dispatcher turns check and submit intents into completion requests
// and reports the outcome as a stream of UI events.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/models"
	"github.com/terra-clan/challenge-tracker/pkg/client"
)

const (
	// MaxAttempts is the number of times a completion request is sent before giving up
	MaxAttempts = 3

	eventBuffer = 8
)

// ErrUnknownSubmitType is returned for submit types the dispatcher has no strategy for
var ErrUnknownSubmitType = errors.New("unknown submit type")

// Action is the user intent being dispatched
type Action int

const (
	ActionCheck Action = iota
	ActionSubmit
)

func (a Action) String() string {
	switch a {
	case ActionCheck:
		return "check"
	case ActionSubmit:
		return "submit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// SubmitType classifies how a challenge is submitted
type SubmitType int

const (
	SubmitTests SubmitType = iota + 1
	SubmitStep
	SubmitVideo
	SubmitFrontEndProject
	SubmitBackEndProject
	SubmitSimpleProject
)

var submitTypeNames = map[SubmitType]string{
	SubmitTests:           "tests",
	SubmitStep:            "step",
	SubmitVideo:           "video",
	SubmitFrontEndProject: "project.frontEnd",
	SubmitBackEndProject:  "project.backEnd",
	SubmitSimpleProject:   "project.simple",
}

func (t SubmitType) String() string {
	if name, ok := submitTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("submitType(%d)", int(t))
}

// ParseSubmitType maps a submit type tag to its SubmitType
func ParseSubmitType(s string) (SubmitType, error) {
	for t, name := range submitTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSubmitType, s)
}

// TestResult is the outcome of one test in the current run
type TestResult struct {
	Pass bool
	Err  string
}

// Challenge describes the active challenge
type Challenge struct {
	ID            string
	ChallengeType models.ChallengeType
	SubmitType    SubmitType
}

// State is the session state a dispatch reads
type State struct {
	Challenge Challenge
	Tests     []TestResult
	Files     map[string]models.File
	// Username is empty for anonymous sessions
	Username string
}

// Intent is one check or submit request from the UI
type Intent struct {
	Action     Action
	Solution   string
	GithubLink string
}

// Completer sends completion requests. *client.Client satisfies it.
type Completer interface {
	CompleteModern(ctx context.Context, req client.ModernRequest) (*client.CompletionResult, error)
	CompleteChallenge(ctx context.Context, req client.ChallengeRequest) (*client.CompletionResult, error)
	CompleteProject(ctx context.Context, req client.ProjectRequest) (*client.CompletionResult, error)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithCompliments replaces the compliment source
func WithCompliments(fn func() string) Option {
	return func(d *Dispatcher) {
		d.compliment = fn
	}
}

// Dispatcher selects a submission strategy and runs it
type Dispatcher struct {
	completer  Completer
	logger     zerolog.Logger
	compliment func() string
}

// New creates a Dispatcher
func New(completer Completer, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		completer:  completer,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		compliment: RandomCompliment,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts handling an intent. Events arrive on the returned channel in
// emission order and the channel is closed after the last one. Readers may
// stop early; the worker never blocks on a full channel.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent, state State) (<-chan Event, error) {
	var run func(ctx context.Context, emit func(Event))

	switch state.Challenge.SubmitType {
	case SubmitTests:
		run = func(ctx context.Context, emit func(Event)) {
			d.submitModern(ctx, intent, state, emit)
		}
	case SubmitStep, SubmitVideo, SubmitSimpleProject:
		run = func(ctx context.Context, emit func(Event)) {
			d.post(ctx, state.Username, emit, func(ctx context.Context) (*client.CompletionResult, error) {
				return d.completer.CompleteChallenge(ctx, client.ChallengeRequest{ID: state.Challenge.ID})
			})
		}
	case SubmitFrontEndProject, SubmitBackEndProject:
		run = func(ctx context.Context, emit func(Event)) {
			d.submitProject(ctx, intent, state, emit)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmitType, state.Challenge.SubmitType)
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		run(ctx, func(e Event) {
			select {
			case events <- e:
			default:
				d.logger.Warn().Str("event", e.Kind.String()).Msg("Event dropped, reader not keeping up")
			}
		})
	}()

	return events, nil
}

func (d *Dispatcher) submitModern(ctx context.Context, intent Intent, state State, emit func(Event)) {
	if !allPassing(state.Tests) {
		emit(toastEvent(ToastInfo, "Almost There!", "Not all tests are passing, yet."))
		return
	}

	switch intent.Action {
	case ActionCheck:
		emit(Event{Kind: EventChallengeComplete})
	case ActionSubmit:
		d.post(ctx, state.Username, emit, func(ctx context.Context) (*client.CompletionResult, error) {
			return d.completer.CompleteModern(ctx, client.ModernRequest{
				ID:    state.Challenge.ID,
				Files: state.Files,
			})
		})
	}
}

func (d *Dispatcher) submitProject(ctx context.Context, intent Intent, state State, emit func(Event)) {
	req := client.ProjectRequest{
		ID:            state.Challenge.ID,
		ChallengeType: int(state.Challenge.ChallengeType),
		Solution:      intent.Solution,
	}
	if state.Challenge.ChallengeType == models.ChallengeBackEndProject {
		req.GithubLink = intent.GithubLink
	}

	d.post(ctx, state.Username, emit, func(ctx context.Context) (*client.CompletionResult, error) {
		return d.completer.CompleteProject(ctx, req)
	})
}

func (d *Dispatcher) post(ctx context.Context, username string, emit func(Event), send func(ctx context.Context) (*client.CompletionResult, error)) {
	if username != "" {
		emit(toastEvent(ToastInfo, "", " Saving..."))
	}

	result, err := d.withRetry(ctx, send)
	if err != nil {
		d.logger.Error().Err(err).Str("username", username).Msg("Failed to save completion")
		emit(toastEvent(ToastError, "", errorMessage(err)))
		return
	}

	suffix := "! First time Completed!"
	if result.AlreadyCompleted {
		suffix = "!"
	}
	emit(toastEvent(ToastInfo, "", d.compliment()+suffix))

	if result.Recorded {
		emit(Event{Kind: EventPointsUpdate, Username: username, Points: result.Points})
	}
	emit(Event{Kind: EventNavigateNext})
}

func (d *Dispatcher) withRetry(ctx context.Context, send func(ctx context.Context) (*client.CompletionResult, error)) (*client.CompletionResult, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		result, err := send(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			break
		}
		d.logger.Debug().Err(err).Int("attempt", attempt).Msg("Completion request failed")
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// transport failures, including per-request client timeouts; caller
	// cancellation is caught by the ctx check in withRetry
	return true
}

func allPassing(tests []TestResult) bool {
	if len(tests) == 0 {
		return false
	}
	for _, t := range tests {
		if !t.Pass || t.Err != "" {
			return false
		}
	}
	return true
}

func errorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
		return "Your submission was rejected. Check your work and try again."
	}
	return "Something went wrong saving your progress. Please try again."
}
