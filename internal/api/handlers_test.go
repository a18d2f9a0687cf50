package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicker/match-app/internal/chat"
	"github.com/flicker/match-app/internal/matching"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/notify"
	"github.com/flicker/match-app/internal/profile"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, notify.Event) {}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	users := profile.NewMemoryStore()
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "ana", Name: "Ana", Email: "ana@example.com", Age: 28, Gender: models.GenderFemale, GenderPreference: models.GenderMale},
		{ID: "ben", Name: "Ben", Email: "ben@example.com", Age: 31, Gender: models.GenderMale, GenderPreference: models.GenderFemale},
	} {
		u := u
		require.NoError(t, users.Create(ctx, &u))
	}

	logger := zerolog.Nop()
	return NewRouter(Deps{
		Logger:    logger,
		Matcher:   matching.NewEngine(users, nopNotifier{}, logger),
		Messenger: chat.NewService(chat.NewMemoryStore(), users, nopNotifier{}, logger),
	})
}

func do(t *testing.T, h http.Handler, method, path, uid, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if uid != "" {
		req.Header.Set(UserHeader, uid)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRequireUser(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/api/matches", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestSwipeRightFlow(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/swipes/right/ben", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["matched"])

	rec, body = do(t, h, http.MethodPost, "/api/swipes/right/ana", "ben", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["matched"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, []interface{}{"ana"}, user["matches"])

	rec, body = do(t, h, http.MethodGet, "/api/matches", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	matches := body["matches"].([]interface{})
	require.Len(t, matches, 1)
	assert.Equal(t, "ben", matches[0].(map[string]interface{})["_id"])
}

func TestSwipeErrors(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/swipes/right/nobody", "ana", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = do(t, h, http.MethodPost, "/api/swipes/right/ana", "ana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/swipes/left/ben", "ghost", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSwipeLeft(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/swipes/left/ben", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, []interface{}{"ben"}, user["dislikes"])
	_, hasMatched := body["matched"]
	assert.False(t, hasMatched)
}

func TestProfiles(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/api/users/profiles", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	users := body["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "ben", users[0].(map[string]interface{})["_id"])

	rec, _ = do(t, h, http.MethodGet, "/api/users/profiles?limit=abc", "ana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessages(t *testing.T) {
	h := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/messages", "ana", `{"receiverId":"ben","content":"hi ben"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "ana", msg["sender"])
	assert.Equal(t, "ben", msg["receiver"])
	assert.Equal(t, "hi ben", msg["content"])

	_, _ = do(t, h, http.MethodPost, "/api/messages", "ben", `{"receiverId":"ana","content":"hey"}`)

	rec, body = do(t, h, http.MethodGet, "/api/messages/ben", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi ben", msgs[0].(map[string]interface{})["content"])
	assert.Equal(t, "hey", msgs[1].(map[string]interface{})["content"])
}

func TestSendMessageErrors(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodPost, "/api/messages", "ana", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/messages", "ana", `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/messages", "ana", `{"receiverId":"nobody","content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/messages", "ana", `{"receiverId":"ben","content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodGet, "/api/matches", "ana", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flicker_http_requests_total{method="GET",route="/api/matches",status="200"}`)
}

func TestOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, origins(""))
	assert.Equal(t, []string{"https://a.app", "https://b.app"}, origins(" https://a.app, https://b.app ,"))
}
