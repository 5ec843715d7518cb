package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/interactive-solutions/go-intake/internal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestHttpHandler(t *testing.T) {
	suite.Run(t, new(httpHandlerTestSuite))
}

type httpHandlerTestSuite struct {
	suite.Suite

	relay  *recordingRelay
	repo   *jobRepository
	app    *application
	router http.Handler
}

func (suite *httpHandlerTestSuite) SetupTest() {
	suite.relay = &recordingRelay{}
	suite.repo = &jobRepository{}
	suite.app = newTestApp(suite.T(), suite.relay,
		SetJobRepo(suite.repo),
		SetAllowedOrigins([]string{"https://scatprojects.netlify.app"}),
		SetTrustProxy(true),
	)
	suite.router = suite.app.HttpHandler().Router()
}

func (suite *httpHandlerTestSuite) do(method, path, body string, headers ...string) (*httptest.ResponseRecorder, internal.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	suite.router.ServeHTTP(rec, req)

	var resp internal.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)

	return rec, resp
}

func (suite *httpHandlerTestSuite) TestCallbackIsAcknowledged() {
	rec, resp := suite.do(http.MethodPost, "/callback",
		`{"phone":"9876543210","timestamp":"2024-01-01 10:00 AM","formType":"callback"}`)

	assert.Equal(suite.T(), http.StatusAccepted, rec.Code)
	assert.Equal(suite.T(), "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(suite.T(), "queued", resp.Status)
	assert.Equal(suite.T(), "Callback request queued successfully. You will be contacted soon.", resp.Message)
	assert.NotEmpty(suite.T(), resp.JobId)

	assert.Eventually(suite.T(), func() bool {
		return len(suite.relay.Order()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(suite.T(), resp.JobId, suite.relay.Order()[0])
}

func (suite *httpHandlerTestSuite) TestProjectIsAcknowledged() {
	rec, resp := suite.do(http.MethodPost, "/project",
		`{"name":"Ada Lovelace","phone":"9876543210","branch":"Computer Science","project":"An analytical engine","timestamp":"2024-01-01 10:00 AM","formType":"project"}`)

	assert.Equal(suite.T(), http.StatusAccepted, rec.Code)
	assert.Equal(suite.T(), "queued", resp.Status)
	assert.Equal(suite.T(), "Project request queued successfully. We will review your submission.", resp.Message)
}

func (suite *httpHandlerTestSuite) TestShortNameIsRejected() {
	rec, resp := suite.do(http.MethodPost, "/project",
		`{"name":"Al","phone":"9876543210","branch":"Computer Science","project":"An analytical engine","timestamp":"2024-01-01 10:00 AM","formType":"project"}`)

	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(suite.T(), "error", resp.Status)
	assert.Equal(suite.T(), "Name must be at least 3 alphabetic characters", resp.Message)
	require.Len(suite.T(), resp.Errors, 1)
	assert.Equal(suite.T(), "name", resp.Errors[0].Field)
	assert.Empty(suite.T(), suite.repo.Created)
}

func (suite *httpHandlerTestSuite) TestMalformedBodies() {
	for _, body := range []string{"", "not json", "[1,2,3]", "null", `"phone"`} {
		rec, resp := suite.do(http.MethodPost, "/callback", body)

		assert.Equal(suite.T(), http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(suite.T(), "error", resp.Status)
	}
}

func (suite *httpHandlerTestSuite) TestHealth() {
	rec, resp := suite.do(http.MethodGet, "/health", "")

	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), internal.Response{Status: "success", Message: "Server is running"}, resp)
}

func (suite *httpHandlerTestSuite) TestUnmatchedRoutes() {
	for _, route := range [][2]string{
		{http.MethodGet, "/"},
		{http.MethodGet, "/index.html"},
		{http.MethodGet, "/callback"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/project"},
	} {
		rec, resp := suite.do(route[0], route[1], "")

		assert.Equal(suite.T(), http.StatusNotFound, rec.Code, "%s %s", route[0], route[1])
		assert.Equal(suite.T(), internal.Response{Status: "error", Message: "Route not found"}, resp)
	}
}

func (suite *httpHandlerTestSuite) TestRateLimitRunsBeforeValidation() {
	app := newTestApp(suite.T(), &recordingRelay{},
		SetRateLimiter(JobCallback, NewMemoryRateLimiter(2, time.Minute)),
	)
	suite.router = app.HttpHandler().Router()

	body := `{"phone":"9876543210","formType":"callback"}`

	for i := 0; i < 2; i++ {
		rec, _ := suite.do(http.MethodPost, "/callback", body)
		assert.Equal(suite.T(), http.StatusAccepted, rec.Code)
	}

	rec, resp := suite.do(http.MethodPost, "/callback", `{"phone":"1"}`)
	assert.Equal(suite.T(), http.StatusTooManyRequests, rec.Code)
	assert.Equal(suite.T(), "Too many callback requests, please try again later.", resp.Message)

	rec, _ = suite.do(http.MethodPost, "/project", `{"name":"Al"}`)
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code, "project has its own limiter")
}

func (suite *httpHandlerTestSuite) TestRateLimitPerForwardedCaller() {
	app := newTestApp(suite.T(), &recordingRelay{},
		SetTrustProxy(true),
		SetRateLimiter(JobProject, NewMemoryRateLimiter(1, time.Minute)),
	)
	suite.router = app.HttpHandler().Router()

	body := `{"name":"Al"}`

	rec, _ := suite.do(http.MethodPost, "/project", body, "X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)

	rec, resp := suite.do(http.MethodPost, "/project", body, "X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(suite.T(), http.StatusTooManyRequests, rec.Code, "same right-most hop")
	assert.Equal(suite.T(), "Too many project requests, please try again later.", resp.Message)

	rec, _ = suite.do(http.MethodPost, "/project", body, "X-Forwarded-For", "10.0.0.2")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis down")
}

func (suite *httpHandlerTestSuite) TestLimiterErrorsFailOpen() {
	app := newTestApp(suite.T(), &recordingRelay{}, SetRateLimiter(JobCallback, failingLimiter{}))
	suite.router = app.HttpHandler().Router()

	rec, _ := suite.do(http.MethodPost, "/callback", `{"phone":"9876543210","formType":"callback"}`)
	assert.Equal(suite.T(), http.StatusAccepted, rec.Code)
}

func (suite *httpHandlerTestSuite) TestStoreFailureIsServerError() {
	app := newTestApp(suite.T(), &recordingRelay{}, SetJobRepo(&jobRepository{CreateErr: errors.New("db down")}))
	suite.router = app.HttpHandler().Router()

	rec, resp := suite.do(http.MethodPost, "/callback", `{"phone":"9876543210","formType":"callback"}`)

	assert.Equal(suite.T(), http.StatusInternalServerError, rec.Code)
	assert.Equal(suite.T(), "Failed to queue callback request", resp.Message)
}

func (suite *httpHandlerTestSuite) TestUnreachableWebhookStaysInvisibleToCaller() {
	repo := &jobRepository{}
	relay := RelayFunc(func(ctx context.Context, job *Job) error {
		return &TransportError{Err: errors.New("dial tcp: connection refused")}
	})

	app := newTestApp(suite.T(), relay, SetJobRepo(repo), SetQueueOptions(SetAttempts(3)))
	suite.router = app.HttpHandler().Router()

	rec, resp := suite.do(http.MethodPost, "/callback",
		`{"phone":"9876543210","timestamp":"2024-01-01 10:00 AM","formType":"callback"}`)
	require.Equal(suite.T(), http.StatusAccepted, rec.Code)

	assert.Eventually(suite.T(), func() bool {
		states := repo.States(resp.JobId)
		return len(states) == 2 && states[1] == JobFailed
	}, 2*time.Second, time.Millisecond)

	rec, health := suite.do(http.MethodGet, "/health", "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "success", health.Status)
}

func (suite *httpHandlerTestSuite) TestCors() {
	rec, _ := suite.do(http.MethodGet, "/health", "", "Origin", "https://scatprojects.netlify.app")
	assert.Equal(suite.T(), "https://scatprojects.netlify.app", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = suite.do(http.MethodGet, "/health", "", "Origin", "https://evil.example")
	assert.Empty(suite.T(), rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *httpHandlerTestSuite) TestCorsDefaultsToKnownSites() {
	app := newTestApp(suite.T(), &recordingRelay{})
	suite.router = app.HttpHandler().Router()

	rec, _ := suite.do(http.MethodGet, "/health", "", "Origin", "http://localhost:3000")
	assert.Equal(suite.T(), "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = suite.do(http.MethodGet, "/health", "", "Origin", "https://evil.example")
	assert.Empty(suite.T(), rec.Header().Get("Access-Control-Allow-Origin"))
}
