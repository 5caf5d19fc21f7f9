package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/auth"
	"github.com/terra-clan/challenge-tracker/internal/catalog"
	"github.com/terra-clan/challenge-tracker/internal/completion"
	"github.com/terra-clan/challenge-tracker/internal/config"
	"github.com/terra-clan/challenge-tracker/internal/health"
	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
	"github.com/terra-clan/challenge-tracker/internal/storage"
)

const (
	testSecret   = "test-secret"
	testUserID   = "5f1b8e3c2a4d6e0f1a2b3c4d"
	challengeID  = "5e46f7f8ac417301a38fb92a"
	testLearnURL = "https://learn.example.org"
)

// countingRepo records how often storage is touched
type countingRepo struct {
	*storage.MemoryRepository
	gets     int
	applies  int
	applyErr error
}

func (c *countingRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	c.gets++
	return c.MemoryRepository.GetUser(ctx, id)
}

func (c *countingRepo) ApplyCompletion(ctx context.Context, userID string, update models.UserUpdate) error {
	c.applies++
	if c.applyErr != nil {
		return c.applyErr
	}
	return c.MemoryRepository.ApplyCompletion(ctx, userID, update)
}

type testEnv struct {
	server *Server
	repo   *countingRepo
	now    time.Time
}

func newTestEnv(t *testing.T, opts ...func(*Deps, *config.CSRFConfig)) *testEnv {
	t.Helper()

	repo := &countingRepo{MemoryRepository: storage.NewMemoryRepository()}
	repo.PutUser(&models.User{ID: testUserID, Username: "camper", Points: 5})

	env := &testEnv{repo: repo, now: time.UnixMilli(1_700_000_000_000)}
	clock := func() time.Time { return env.now }

	cat := catalog.NewLoader(zerolog.Nop())
	cat.Add(&models.Challenge{
		ID:         challengeID,
		DashedName: "say-hello-to-html-elements",
		Block:      "basic-html-and-html5",
		SuperBlock: "Responsive Web Design",
	})
	cat.AddMigration("old-challenge", "/responsive-web-design/basic-html-and-html5/new-challenge")

	deps := Deps{
		Completions: completion.NewService(repo, zerolog.Nop(), completion.WithClock(clock)),
		Users:       repo,
		Catalog:     cat,
		Tokens:      auth.NewValidator(testSecret),
		Metrics:     metrics.New(prometheus.NewRegistry()),
		Logger:      zerolog.Nop(),
	}
	csrfCfg := config.CSRFConfig{}
	for _, opt := range opts {
		opt(&deps, &csrfCfg)
	}

	cfg := config.ServerConfig{LearnURL: testLearnURL, AllowedOrigins: []string{"*"}}
	env.server = NewServer(cfg, csrfCfg, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool, accept string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if authed {
		token, err := auth.IssueToken(testSecret, testUserID, "camper", time.Hour)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) completion.Result {
	t.Helper()
	var res completion.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode result %q: %v", rec.Body.String(), err)
	}
	return res
}

func TestCompletionUnauthenticatedIsNoop(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/modern-challenge-completed",
		"/challenge-completed",
		"/completed-challenge",
		"/project-completed",
		"/completed-zipline-or-basejump",
		"/backend-challenge-completed",
	}

	for _, path := range paths {
		rec := env.do(t, http.MethodPost, path, `{"id":"not-an-id"}`, false, "application/json")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if rec.Body.String() != "true" {
			t.Errorf("%s: expected body true, got %q", path, rec.Body.String())
		}
	}

	if env.repo.gets != 0 || env.repo.applies != 0 {
		t.Errorf("storage touched: %d reads, %d writes", env.repo.gets, env.repo.applies)
	}
}

func TestCompletionInvalidTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/challenge-completed", strings.NewReader(`{"id":"`+challengeID+`"}`))
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "true" {
		t.Errorf("expected 200 true, got %d %q", rec.Code, rec.Body.String())
	}
	if env.repo.applies != 0 {
		t.Error("anonymous completion must not be stored")
	}
}

func TestCompletionValidationShortCircuit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/modern-challenge-completed", `{"files":{"index.js":"code"}}`, true, "application/json")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	var body struct {
		Errors map[string]completion.FieldError `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode errors: %v", err)
	}
	if body.Errors["id"].Msg != "id must be an ObjectId" {
		t.Errorf("unexpected errors: %+v", body.Errors)
	}

	rec = env.do(t, http.MethodPost, "/challenge-completed", `{"id":"abc123"}`, true, "text/html")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected bare 403, got body %q", rec.Body.String())
	}

	if env.repo.gets != 0 || env.repo.applies != 0 {
		t.Errorf("storage touched: %d reads, %d writes", env.repo.gets, env.repo.applies)
	}
	user, _ := env.repo.MemoryRepository.GetUser(context.Background(), testUserID)
	if user.Points != 5 {
		t.Errorf("points changed to %d", user.Points)
	}
}

func TestModernCompletionFirstThenRepeat(t *testing.T) {
	env := newTestEnv(t)
	first := env.now.UnixMilli()

	rec := env.do(t, http.MethodPost, "/modern-challenge-completed",
		`{"id":"`+challengeID+`","files":{"index.js":"code"}}`, true, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeResult(t, rec)
	if res.Points != 6 || res.AlreadyCompleted || res.CompletedDate != first {
		t.Errorf("unexpected first result: %+v", res)
	}

	env.now = env.now.Add(24 * time.Hour)
	rec = env.do(t, http.MethodPost, "/modern-challenge-completed",
		`{"id":"`+challengeID+`","files":{"index.js":"other code"}}`, true, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res = decodeResult(t, rec)
	if res.Points != 6 || !res.AlreadyCompleted || res.CompletedDate != first {
		t.Errorf("unexpected repeat result: %+v", res)
	}

	user, _ := env.repo.MemoryRepository.GetUser(context.Background(), testUserID)
	if len(user.CompletedChallenges) != 1 || user.CompletedChallenges[0].CompletedDate != first {
		t.Errorf("unexpected stored completions: %+v", user.CompletedChallenges)
	}
	if len(user.ProgressTimestamps) != 1 {
		t.Errorf("expected 1 progress timestamp, got %v", user.ProgressTimestamps)
	}
}

func TestCompletionBareSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/backend-challenge-completed",
		`{"id":"`+challengeID+`","solution":"https://example.com/api"}`, true, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
	if env.repo.applies != 1 {
		t.Errorf("expected 1 write, got %d", env.repo.applies)
	}
}

func TestSimpleCompletionSetsTimezone(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/completed-challenge",
		`{"id":"`+challengeID+`","timezone":"America/New_York"}`, true, "application/json")
	env.do(t, http.MethodPost, "/challenge-completed",
		`{"id":"5e46f7f8ac417301a38fb92b","timezone":"Asia/Kolkata"}`, true, "application/json")

	user, _ := env.repo.MemoryRepository.GetUser(context.Background(), testUserID)
	if user.Timezone != "America/New_York" {
		t.Errorf("expected America/New_York, got %q", user.Timezone)
	}
}

func TestProjectCompletionRequiresGithubLink(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":"` + challengeID + `","challengeType":4,"solution":"https://example.com/app"}`

	rec := env.do(t, http.MethodPost, "/project-completed", body, true, "application/json")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	var resp flashResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode flash: %v", err)
	}
	if resp.Flash.Type != "danger" || resp.Flash.Message != completion.MissingLinksMessage {
		t.Errorf("unexpected flash: %+v", resp.Flash)
	}
	if env.repo.applies != 0 {
		t.Error("rejected project must not be stored")
	}

	body = `{"id":"` + challengeID + `","challengeType":4,"solution":"https://example.com/app","githubLink":"https://github.com/camper/app"}`
	rec = env.do(t, http.MethodPost, "/completed-zipline-or-basejump", body, true, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	user, _ := env.repo.MemoryRepository.GetUser(context.Background(), testUserID)
	if len(user.CompletedChallenges) != 1 || user.CompletedChallenges[0].GithubLink != "https://github.com/camper/app" {
		t.Errorf("unexpected stored completions: %+v", user.CompletedChallenges)
	}
}

func TestCompletionUnknownUserIsNoop(t *testing.T) {
	env := newTestEnv(t)

	token, _ := auth.IssueToken(testSecret, "5f1b8e3c2a4d6e0f1a2b3c4e", "ghost", time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/challenge-completed", strings.NewReader(`{"id":"`+challengeID+`"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "true" {
		t.Errorf("expected 200 true, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCompletionStorageError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.applyErr = errors.New("disk full")

	rec := env.do(t, http.MethodPost, "/challenge-completed", `{"id":"`+challengeID+`"}`, true, "application/json")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != "internal_error" {
		t.Errorf("unexpected error body: %+v", resp)
	}
}

func TestCurrentChallengeRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.repo.PutUser(&models.User{ID: testUserID, Username: "camper", CurrentChallengeID: challengeID})

	rec := env.do(t, http.MethodGet, "/challenges/current-challenge", "", true, "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	want := testLearnURL + "/responsive-web-design/basic-html-and-html5/say-hello-to-html-elements"
	if got := rec.Header().Get("Location"); got != want {
		t.Errorf("expected Location %q, got %q", want, got)
	}
}

func TestCurrentChallengeIncompleteCatalogEntry(t *testing.T) {
	env := newTestEnv(t)
	env.server.catalog.Add(&models.Challenge{ID: "5e46f7f8ac417301a38fb999", SuperBlock: "Broken"})
	env.repo.PutUser(&models.User{ID: testUserID, CurrentChallengeID: "5e46f7f8ac417301a38fb999"})

	rec := env.do(t, http.MethodGet, "/challenges/current-challenge", "", true, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLegacyRedirects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want string
	}{
		{path: "/challenges/old-challenge", want: testLearnURL + "/responsive-web-design/basic-html-and-html5/new-challenge"},
		{path: "/challenges/some/unknown", want: testLearnURL},
		{path: "/challenges", want: testLearnURL},
		{path: "/map", want: testLearnURL},
	}

	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, tt.path, "", false, "")
		if rec.Code != http.StatusFound {
			t.Errorf("%s: expected 302, got %d", tt.path, rec.Code)
			continue
		}
		if got := rec.Header().Get("Location"); got != tt.want {
			t.Errorf("%s: expected Location %q, got %q", tt.path, tt.want, got)
		}
	}
}

type staticBoard []models.PointsEntry

func (b staticBoard) Top(ctx context.Context, limit int64) ([]models.PointsEntry, error) {
	if int64(len(b)) > limit {
		return b[:limit], nil
	}
	return b, nil
}

func TestLeaderboardRoute(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/v1/leaderboard", "", false, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a leaderboard, got %d", rec.Code)
	}

	env = newTestEnv(t, func(d *Deps, _ *config.CSRFConfig) {
		d.Leaderboard = staticBoard{{UserID: "a", Points: 9, Rank: 1}, {UserID: "b", Points: 3, Rank: 2}}
	})
	rec := env.do(t, http.MethodGet, "/api/v1/leaderboard?limit=1", "", false, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Entries []models.PointsEntry `json:"entries"`
			Total   int                  `json:"total"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Success || resp.Data.Total != 1 || resp.Data.Entries[0].UserID != "a" {
		t.Errorf("unexpected leaderboard: %+v", resp)
	}
}

func TestReadyReportsFailingChecks(t *testing.T) {
	reg := health.NewRegistry(time.Second)
	reg.Register("database", health.CheckerFunc(func(ctx context.Context) error { return nil }))

	env := newTestEnv(t, func(d *Deps, _ *config.CSRFConfig) { d.Health = reg })
	if rec := env.do(t, http.MethodGet, "/ready", "", false, ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	reg.Register("redis", health.CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	if rec := env.do(t, http.MethodGet, "/ready", "", false, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestCSRFProtection(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, c *config.CSRFConfig) {
		c.AuthKey = "0123456789abcdef0123456789abcdef"
		c.Secure = false
	})

	rec := env.do(t, http.MethodPost, "/challenge-completed", `{"id":"`+challengeID+`"}`, true, "application/json")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without a CSRF token, got %d", rec.Code)
	}
	if env.repo.applies != 0 {
		t.Error("request without CSRF token must not be stored")
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		accept string
		want   bool
	}{
		{accept: "", want: false},
		{accept: "application/json", want: true},
		{accept: "application/json, text/plain, */*", want: true},
		{accept: "text/html,application/xhtml+xml", want: false},
		{accept: "*/*", want: false},
		{accept: "text/html;q=0.5, application/json", want: true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept", tt.accept)
		}
		if got := wantsJSON(req); got != tt.want {
			t.Errorf("wantsJSON(%q) = %v, want %v", tt.accept, got, tt.want)
		}
	}
}
