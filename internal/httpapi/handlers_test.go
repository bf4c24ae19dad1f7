package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/pickup-room-sync/internal/hub"
	"github.com/DoyleJ11/pickup-room-sync/internal/room"
	"github.com/DoyleJ11/pickup-room-sync/internal/types"
)

func newTestRouter(t *testing.T, token string) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return SetupRoutes(hub.NewHub(ctx), zaptest.NewLogger(t), token)
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetSnapshot_UnknownRoomIs404(t *testing.T) {
	r := newTestRouter(t, "")
	rec := do(t, r, http.MethodGet, "/games/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostEvent_ThenSnapshot(t *testing.T) {
	r := newTestRouter(t, "")

	rec := do(t, r, http.MethodPost, "/games/g1/events", "", room.NewEvent(room.EvtParticipantJoined, "alice"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var acc types.EventAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, types.EventAccepted{RoomID: "g1", Changed: true, Version: 1}, acc)

	rec = do(t, r, http.MethodPost, "/games/g1/events", "", room.NewEvent(room.EvtWaitlistJoined, "bob"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, r, http.MethodPost, "/games/g1/events", "", room.NewEvent(room.EvtParticipantJoined, "alice"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.False(t, acc.Changed)
	assert.Equal(t, 2, acc.Version)

	rec = do(t, r, http.MethodGet, "/games/g1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, room.Snapshot{Participants: []string{"alice"}, Waitlist: []string{"bob"}}, snap)
}

func TestPostEvent_RejectsBadInput(t *testing.T) {
	r := newTestRouter(t, "")

	cases := []struct {
		name string
		body any
	}{
		{"unknown type", room.NewEvent("participant_kicked", "alice")},
		{"missing user", room.NewEvent(room.EvtParticipantJoined, " ")},
		{"not json", "just a string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/games/g1/events", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Nothing above may have created the room.
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/games/g1", "", nil).Code)
}

func TestRequireBearer(t *testing.T) {
	r := newTestRouter(t, "secret")

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/games/g1", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/games/g1", "wrong", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/games/g1", "secret", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/games/g1", nil)
	req.Header.Set("Authorization", "Token secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListGames(t *testing.T) {
	r := newTestRouter(t, "")

	rec := do(t, r, http.MethodGet, "/games", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())

	for _, id := range []string{"g2", "g1"} {
		require.Equal(t, http.StatusAccepted,
			do(t, r, http.MethodPost, "/games/"+id+"/events", "", room.NewEvent(room.EvtParticipantJoined, "alice")).Code)
	}

	rec = do(t, r, http.MethodGet, "/games", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list types.RoomList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"g1", "g2"}, list.Rooms)
}
