package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// ErrMissingGithubLink rejects back-end project submissions without a repository link
var ErrMissingGithubLink = errors.New("github link is required for back-end projects")

// MissingLinksMessage is the user-facing notice for ErrMissingGithubLink
const MissingLinksMessage = "You haven't supplied the necessary URLs for us to inspect your work."

// Variant selects the request schema and field set of a completion route
type Variant int

const (
	VariantModern Variant = iota
	VariantSimple
	VariantProject
	VariantBackend
)

func (v Variant) String() string {
	switch v {
	case VariantModern:
		return "modern"
	case VariantSimple:
		return "simple"
	case VariantProject:
		return "project"
	case VariantBackend:
		return "backend"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Submission is a validated completion request
type Submission struct {
	Variant       Variant
	ID            string
	Files         map[string]models.File
	Solution      string
	GithubLink    string
	ChallengeType *int
	Timezone      string
}

// Completion builds the record to store for this submission
func (s Submission) Completion(completedDate int64) models.CompletedChallenge {
	return models.CompletedChallenge{
		ID:            s.ID,
		CompletedDate: completedDate,
		Solution:      s.Solution,
		GithubLink:    s.GithubLink,
		Files:         s.Files,
		ChallengeType: s.ChallengeType,
	}
}

type request interface {
	submission() Submission
}

type modernRequest struct {
	ID    string                 `json:"id" validate:"required,mongodb"`
	Files map[string]models.File `json:"files" validate:"required,files"`
}

func (r *modernRequest) submission() Submission {
	return Submission{Variant: VariantModern, ID: r.ID, Files: r.Files}
}

type simpleRequest struct {
	ID       string `json:"id" validate:"required,mongodb"`
	Solution string `json:"solution"`
	Timezone string `json:"timezone"`
}

func (r *simpleRequest) submission() Submission {
	return Submission{Variant: VariantSimple, ID: r.ID, Solution: r.Solution, Timezone: r.Timezone}
}

type projectRequest struct {
	ID            string `json:"id" validate:"required,mongodb"`
	ChallengeType *float64 `json:"challengeType" validate:"required,integral"`
	Solution      string   `json:"solution" validate:"required,weburl"`
	GithubLink    string   `json:"githubLink"`
}

func (r *projectRequest) submission() Submission {
	challengeType := int(*r.ChallengeType)
	return Submission{
		Variant:       VariantProject,
		ID:            r.ID,
		ChallengeType: &challengeType,
		Solution:      r.Solution,
		GithubLink:    r.GithubLink,
	}
}

type backendRequest struct {
	ID       string `json:"id" validate:"required,mongodb"`
	Solution string `json:"solution" validate:"required,weburl"`
}

func (r *backendRequest) submission() Submission {
	return Submission{Variant: VariantBackend, ID: r.ID, Solution: r.Solution}
}

func (v Variant) newRequest() request {
	switch v {
	case VariantModern:
		return &modernRequest{}
	case VariantSimple:
		return &simpleRequest{}
	case VariantProject:
		return &projectRequest{}
	default:
		return &backendRequest{}
	}
}

// Decode parses and validates a request body for this variant.
// Failures are *ValidationError or ErrMissingGithubLink.
func (v Variant) Decode(body io.Reader) (Submission, error) {
	req := v.newRequest()

	if err := json.NewDecoder(body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return Submission{}, decodeError(err)
	}

	if err := validate.Struct(req); err != nil {
		return Submission{}, validationError(err)
	}

	sub := req.submission()
	if v == VariantProject &&
		sub.ChallengeType != nil &&
		models.ChallengeType(*sub.ChallengeType) == models.ChallengeBackEndProject &&
		sub.GithubLink == "" {
		return Submission{}, ErrMissingGithubLink
	}

	return sub, nil
}

// FieldError describes one rejected field
type FieldError struct {
	Param string `json:"param"`
	Msg   string `json:"msg"`
	Value any    `json:"value"`
}

// ValidationError lists rejected fields keyed by name
type ValidationError struct {
	Fields map[string]FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name].Msg)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var fieldMessages = map[string]string{
	"id":            "id must be an ObjectId",
	"files":         "files must be an object keyed by file name",
	"challengeType": "must be a number",
	"solution":      "solution must be a URL",
}

func messageFor(field string) string {
	if msg, ok := fieldMessages[field]; ok {
		return msg
	}
	return field + " is invalid"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// files: a non-empty object whose keys are file names
	if err := v.RegisterValidation("files", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Map || field.Len() == 0 {
			return false
		}
		for _, key := range field.MapKeys() {
			if key.String() == "" {
				return false
			}
		}
		return true
	}); err != nil {
		panic(err)
	}

	// integral: a JSON number with no fractional part, so 4 and 4.0 both pass
	if err := v.RegisterValidation("integral", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Float64 {
			return false
		}
		f := field.Float()
		return !math.IsInf(f, 0) && f == math.Trunc(f)
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("weburl", func(fl validator.FieldLevel) bool {
		return IsWebURL(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// hosts checks URL hosts; it is separate from validate, whose "weburl" rule calls it
var hosts = validator.New()

var webSchemes = map[string]bool{"http": true, "https": true, "ftp": true}

// IsWebURL accepts http, https and ftp URLs, and scheme-less ones such as
// "example.herokuapp.com/app". The host must be a domain with a TLD or an IP.
func IsWebURL(s string) bool {
	if s == "" || len(s) > 2083 || strings.ContainsAny(s, " \t\r\n<>") {
		return false
	}

	raw := s
	if scheme, _, found := strings.Cut(s, "://"); found {
		if !webSchemes[strings.ToLower(scheme)] {
			return false
		}
	} else {
		raw = "http://" + s
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return hosts.Var(host, "fqdn") == nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	out := &ValidationError{Fields: make(map[string]FieldError, len(errs))}
	for _, fe := range errs {
		name := fe.Field()
		out.Fields[name] = FieldError{Param: name, Msg: messageFor(name), Value: fe.Value()}
	}
	return out
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		name, _, _ := strings.Cut(typeErr.Field, ".")
		return &ValidationError{Fields: map[string]FieldError{
			name: {Param: name, Msg: messageFor(name), Value: typeErr.Value},
		}}
	}

	return &ValidationError{Fields: map[string]FieldError{
		"body": {Param: "body", Msg: "body must be a JSON object"},
	}}
}
