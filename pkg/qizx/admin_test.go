package qizx_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qizxdb/qizx-go/pkg/qizx"
	"github.com/qizxdb/qizx-go/pkg/qizx/qizxtest"
)

func TestListLibraries(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)
	ctx := context.Background()

	_, err := client.MkLib(ctx, "audit")
	require.NoError(t, err)

	names, err := client.ListLibraries(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"audit", "qizx"}, names)
}

func TestDelLib(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)
	ctx := context.Background()

	name, err := client.DelLib(ctx, "qizx")
	require.NoError(t, err)
	require.Equal(t, "qizx", name)

	_, err = client.DelLib(ctx, "qizx")
	require.True(t, qizx.IsRemoteError(err, qizx.CodeNotFound))
}

func TestServerControl(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)
	ctx := context.Background()

	state, err := client.ServerControl(ctx, qizx.ServerStatus)
	require.NoError(t, err)
	require.Equal(t, "online", state)

	state, err = client.ServerControl(ctx, qizx.ServerOffline)
	require.NoError(t, err)
	require.Equal(t, "offline", state)
}

func TestServerControlRejectsUnknownCommand(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.ServerControl(context.Background(), "halt")
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestReindexAndProgress(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)
	ctx := context.Background()

	id, err := client.Reindex(ctx, "qizx")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, done, err := client.Progress(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, task)
	require.Equal(t, 1.0, done)
}

func TestProgressUnknownTask(t *testing.T) {
	client := newTestClient(t, qizxtest.New())

	_, _, err := client.Progress(context.Background(), "nope")
	require.True(t, qizx.IsRemoteError(err, qizx.CodeNotFound))
}

func TestBackupDefaultsToAllLibraries(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "backup", r.FormValue("op"))
		require.Equal(t, "/var/backups/qizx", r.FormValue("path"))
		require.Equal(t, qizx.AllLibraries, r.FormValue("library"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("backup-1\n"))
	}))

	id, err := client.Backup(context.Background(), "/var/backups/qizx", "")
	require.NoError(t, err)
	require.Equal(t, "backup-1", id)
}

func TestWaitCompletedTask(t *testing.T) {
	mock := qizxtest.New()
	mock.SetProgress("task-1", 1)
	client := newTestClient(t, mock)

	require.NoError(t, client.Wait(context.Background(), "task-1", 10*time.Millisecond))
}

func TestWaitStopsWhenContextExpires(t *testing.T) {
	mock := qizxtest.New()
	mock.SetProgress("task-1", 0.5)
	client := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The deadline can strike either between polls or inside one; both
	// surface as an error that ends the wait.
	err := client.Wait(ctx, "task-1", 10*time.Millisecond)
	require.Error(t, err)
}

func TestCancelQuery(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "cancelquery", r.URL.Query().Get("op"))
		require.Equal(t, "q42", r.URL.Query().Get("xid"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK\n"))
	}))

	status, err := client.CancelQuery(context.Background(), "q42")
	require.NoError(t, err)
	require.Equal(t, "OK", status)
}

func TestGetStatsRepairsServerJSON(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getstats", r.URL.Query().Get("op"))
		require.Equal(t, qizx.LevelExpert, r.URL.Query().Get("level"))
		require.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		// The real server emits unquoted keys.
		w.Write([]byte(`{records:[{Id:"cache/hits", Value:1024}]}`))
	}))

	records, err := client.GetStats(context.Background(), qizx.LevelExpert)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "cache/hits", records[0]["Id"])
	require.EqualValues(t, 1024, records[0]["Value"])
}

func TestGetStatsRejectsUnknownLevel(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.GetStats(context.Background(), "root")
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestGetConfigDefaultsToAdminLevel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getconfig", r.URL.Query().Get("op"))
		require.Equal(t, qizx.LevelAdmin, r.URL.Query().Get("level"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"records":[{"Name":"log_level","Value":"info"}]}`))
	}))

	records, err := client.GetConfig(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "log_level", records[0]["Name"])
}

func TestChangeConfig(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "changeconfig", r.FormValue("op"))
		require.Equal(t, "log_level", r.FormValue("property0"))
		require.Equal(t, "debug", r.FormValue("value0"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("true\n"))
	}))

	changed, err := client.ChangeConfig(context.Background(), []qizx.ConfigProperty{
		{Name: "log_level", Value: "debug"},
	})
	require.NoError(t, err)
	require.True(t, changed)
}

func TestListTasksRejectsNegativeTimeline(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.ListTasks(context.Background(), -1)
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestListQueries(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "listqueries", r.URL.Query().Get("op"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{records:[{xid:"q1", elapsed:120}]}`))
	}))

	records, err := client.ListQueries(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "q1", records[0]["xid"])
}
