// internal/handlers/race_test.go
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

type staticProvider struct{}

func (staticProvider) GetText(context.Context, string, int) string {
	return "alpha beta gamma delta epsilon"
}

func testRaceServer(t *testing.T) (*RaceServer, *racestore.MemoryStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := racestore.NewMemoryStore()
	rs := NewRaceServer(store, staticProvider{}, config.Load(), log)
	t.Cleanup(func() {
		rs.Controller.Stop()
		rs.Cleanup.Stop()
	})
	return rs, store
}

func TestListRacesHandlerShowsOnlyPublic(t *testing.T) {
	rs, store := testRaceServer(t)
	ctx := context.Background()

	public, err := store.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)
	_, err = store.CreateRace(ctx, "text", "local", 4, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ListRacesHandler(rs)(rec, httptest.NewRequest(http.MethodGet, "/races", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out []raceSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, public.RaceID, out[0].RaceID)
	assert.Equal(t, "waiting", out[0].Status)
	assert.Equal(t, 4, out[0].MaxPlayers)
}

func TestListRacesHandlerRejectsPost(t *testing.T) {
	rs, _ := testRaceServer(t)

	rec := httptest.NewRecorder()
	ListRacesHandler(rs)(rec, httptest.NewRequest(http.MethodPost, "/races", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetRaceHandler(t *testing.T) {
	rs, store := testRaceServer(t)

	race, err := store.CreateRace(context.Background(), "some text", "local", 4, true)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	GetRaceHandler(rs)(rec, httptest.NewRequest(http.MethodGet, "/races/"+race.RaceID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.Race
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, race.RaceID, out.RaceID)
	assert.Equal(t, "some text", out.Text)

	rec = httptest.NewRecorder()
	GetRaceHandler(rs)(rec, httptest.NewRequest(http.MethodGet, "/races/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	GetRaceHandler(rs)(rec, httptest.NewRequest(http.MethodGet, "/races/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsHandlerCountsNothingAtBoot(t *testing.T) {
	rs, _ := testRaceServer(t)

	rec := httptest.NewRecorder()
	StatsHandler(rs)(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 0, out["activeRaces"])
	assert.Equal(t, 0, out["connectedPlayers"])
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "OK", out["status"])
	assert.NotEmpty(t, out["timestamp"])
}

func TestGetTextHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	GetTextHandler(staticProvider{})(rec, httptest.NewRequest(http.MethodGet, "/text?source=local&wordCount=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Text      string `json:"text"`
		Source    string `json:"source"`
		WordCount int    `json:"wordCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "local", out.Source)
	assert.Equal(t, 5, out.WordCount)
	assert.NotEmpty(t, out.Text)
}

func TestSaveResultHandlerWithoutDatabase(t *testing.T) {
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"wpm":72,"accuracy":96.5,"wordCount":50,"source":"local"}`)
	SaveResultHandler(rec, httptest.NewRequest(http.MethodPost, "/results", body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientMessageMapsStoreErrors(t *testing.T) {
	assert.Equal(t, "Race not found", clientMessage(racestore.ErrRaceNotFound))
	assert.Equal(t, "Race is full", clientMessage(racestore.ErrRaceFull))
	assert.Equal(t, "Race has already started or finished", clientMessage(racestore.ErrRaceNotJoinable))
	assert.Equal(t, "Player already in race", clientMessage(racestore.ErrDuplicatePlayer))
	assert.Equal(t, "Something went wrong. Please try again.", clientMessage(io.ErrUnexpectedEOF))
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc123", extractCookieToken("auth_token=abc123", "auth_token"))
	assert.Equal(t, "abc123", extractCookieToken("foo=bar; auth_token=abc123; baz=qux", "auth_token"))
	assert.Equal(t, "", extractCookieToken("foo=bar", "auth_token"))
	assert.Equal(t, "", extractCookieToken("", "auth_token"))
}
