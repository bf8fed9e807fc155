package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStravaRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "client", r.PostForm.Get("client_id"))
		require.Equal(t, "secret", r.PostForm.Get("client_secret"))
		require.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_at":1773484800}`))
	}))
	defer srv.Close()

	client := NewStravaClient(srv.URL, srv.URL+"/oauth/token", "client", "secret")
	token, err := client.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "a2", token.AccessToken)
	require.Equal(t, "r2", token.RefreshToken)
	require.Equal(t, time.Unix(1773484800, 0).UTC(), token.ExpiresAt)
}

func TestStravaRefreshError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewStravaClient(srv.URL, srv.URL, "c", "s").Refresh(context.Background(), "r1")
	require.ErrorContains(t, err, "status=400")
}

func TestStravaListActivitiesKeepsRawPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/athlete/activities", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "30", r.URL.Query().Get("per_page"))
		require.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`[{"id":101,"type":"Run","start_date":"2026-03-14T06:00:00Z","elapsed_time":1800,"distance":5000.4},{"id":102,"type":"Ride","start_date":"2026-03-14T08:00:00Z","elapsed_time":600}]`))
	}))
	defer srv.Close()

	acts, err := NewStravaClient(srv.URL+"/", srv.URL, "c", "s").ListActivities(context.Background(), "tok", 1, 30)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, int64(101), acts[0].ID)
	require.Equal(t, "Run", acts[0].Type)
	require.Equal(t, 1800, acts[0].ElapsedTime)
	require.NotNil(t, acts[0].Distance)
	require.InDelta(t, 5000.4, *acts[0].Distance, 1e-9)
	require.JSONEq(t, `{"id":101,"type":"Run","start_date":"2026-03-14T06:00:00Z","elapsed_time":1800,"distance":5000.4}`, string(acts[0].Raw))
	require.Nil(t, acts[1].Distance)
}
