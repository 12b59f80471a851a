package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
	"eco-challenge-engine/testutil"
)

const rosterPayload = `{"memberships":[
	{"user_id":"alice","school_id":"s1","school_name":"Hillside Primary","updated_at":"2026-03-18T09:00:00Z"},
	{"user_id":"bob","school_id":"s1","updated_at":"2026-03-18T09:05:00Z"},
	{"user_id":"carol","school_id":"s2","school_name":"Riverside","updated_at":"2026-03-18T09:10:00Z"},
	{"user_id":"alice","school_id":"s2","updated_at":"2026-03-18T09:30:00Z"},
	{"user_id":"","school_id":"s3"}
]}`

func TestSyncOnceUpsertsRoster(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repos := repositories.New(db, log)

	var gotSince, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotToken = r.Header.Get("X-Service-Token")
		_, _ = w.Write([]byte(rosterPayload))
	}))
	defer srv.Close()

	w := NewRosterSyncWorker(repos.Schools, srv.URL+"/rosters", "svc-token", time.Minute, log)
	n, err := w.SyncOnce(context.Background(), testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "2026-03-18T10:00:00Z", gotSince)
	assert.Equal(t, "svc-token", gotToken)

	// alice moved to s2 later in the same batch.
	school, err := repos.Schools.SchoolOf(context.Background(), nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s2", school)

	students, err := repos.Schools.StudentsOf(context.Background(), nil, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, students)

	var s1 models.School
	require.NoError(t, db.First(&s1, "id = ?", "s1").Error)
	assert.Equal(t, "Hillside Primary", s1.Name)

	last, err := repos.Schools.LastSyncedAt(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, last.Equal(time.Date(2026, 3, 18, 9, 30, 0, 0, time.UTC)), last)
}

func TestSyncOnceRetriesServerErrors(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repos := repositories.New(db, log)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"memberships":[]}`))
	}))
	defer srv.Close()

	n, err := NewRosterSyncWorker(repos.Schools, srv.URL, "t", time.Minute, log).SyncOnce(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSyncOnceClientErrorsArePermanent(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repos := repositories.New(db, log)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewRosterSyncWorker(repos.Schools, srv.URL, "wrong", time.Minute, log).SyncOnce(context.Background(), time.Time{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDedupeByUserKeepsNewest(t *testing.T) {
	t0 := testutil.Epoch
	rows := dedupeByUser([]models.SchoolMembership{
		{UserID: "a", SchoolID: "s1", UpdatedAt: t0},
		{UserID: "b", SchoolID: "s1", UpdatedAt: t0},
		{UserID: "a", SchoolID: "s2", UpdatedAt: t0.Add(time.Minute)},
		{UserID: "a", SchoolID: "s3", UpdatedAt: t0.Add(-time.Minute)},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "s2", rows[0].SchoolID)
	assert.Equal(t, "b", rows[1].UserID)
}
