package misskey

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionEndpoints(t *testing.T) {
	var lock sync.Mutex
	bodies := make(map[string]map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		lock.Lock()
		bodies[r.URL.Path] = body
		lock.Unlock()

		switch r.URL.Path {
		case "/api/notes/reactions":
			_, _ = w.Write([]byte(`[{"id":"r1","type":":party@.:","user":{"id":"u1","username":"alice"}},{"id":"r2","type":"👍","user":{"id":"u2"}}]`))
		case "/api/notes/reactions/create", "/api/notes/reactions/delete":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	ctx := context.Background()

	reactions, err := client.Reactions(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, reactions, 2)
	assert.Equal(t, ":party@.:", reactions[0].Type)
	assert.Equal(t, "alice", reactions[0].User.Username)

	require.NoError(t, client.React(ctx, "n1", "👍"))
	require.NoError(t, client.Unreact(ctx, "n1"))

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, "n1", bodies["/api/notes/reactions"]["noteId"])
	assert.EqualValues(t, reactionPageLimit, bodies["/api/notes/reactions"]["limit"])
	assert.Equal(t, "👍", bodies["/api/notes/reactions/create"]["reaction"])
	assert.Equal(t, "secret", bodies["/api/notes/reactions/create"]["i"])
	assert.Equal(t, "n1", bodies["/api/notes/reactions/delete"]["noteId"])
}

func TestReactSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"You are already reacting to that note.","code":"ALREADY_REACTED"}}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "secret").React(context.Background(), "n1", "👍")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ALREADY_REACTED", apiErr.Code)
}

func TestUserLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/lists/list", r.URL.Path)
		assert.Equal(t, "secret", decodeBody(t, r)["i"])
		_, _ = w.Write([]byte(`[{"id":"l1","name":"Friends","isPublic":false,"userIds":["u1","u2"]}]`))
	}))
	defer srv.Close()

	lists, err := NewClient(srv.URL, "secret").UserLists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "l1", lists[0].ID)
	assert.Equal(t, "Friends", lists[0].Name)
	assert.Equal(t, []string{"u1", "u2"}, lists[0].UserIDs)
}
