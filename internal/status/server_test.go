package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padcast/internal/ingest"
	"padcast/internal/plugin"
	"padcast/internal/storage"
	logx "padcast/pkg/logx"
)

type pluginsStub struct{}

func (pluginsStub) Snapshot() plugin.PluginsSnapshot {
	return plugin.PluginsSnapshot{
		Running: true,
		Plugins: []plugin.PluginStatus{{Name: "ando", Arg: "/etc/ando.conf", State: plugin.StateStarted, PadEvents: 3}},
	}
}

type ingestStub struct{}

func (ingestStub) Stats() ingest.Stats { return ingest.Stats{Accepted: 7} }

type journalStub struct{ err error }

func (j journalStub) Recent(ctx context.Context, limit int) ([]storage.Entry, error) {
	if j.err != nil {
		return nil, j.err
	}
	return []storage.Entry{{Type: "plugin.started", Plugin: "ando"}}, nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := New(logx.Nop(), Sources{Plugins: pluginsStub{}}).Handler()
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPluginsSnapshot(t *testing.T) {
	t.Parallel()
	h := New(logx.Nop(), Sources{Plugins: pluginsStub{}}).Handler()
	rec := get(t, h, "/plugins")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap plugin.PluginsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Plugins, 1)
	assert.Equal(t, "ando", snap.Plugins[0].Name)
	assert.Equal(t, plugin.StateStarted, snap.Plugins[0].State)
	assert.EqualValues(t, 3, snap.Plugins[0].PadEvents)
}

func TestOptionalSources(t *testing.T) {
	t.Parallel()
	bare := New(logx.Nop(), Sources{Plugins: pluginsStub{}}).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, bare, "/ingest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, bare, "/journal").Code)

	full := New(logx.Nop(), Sources{Plugins: pluginsStub{}, Ingest: ingestStub{}, Journal: journalStub{}}).Handler()
	rec := get(t, full, "/ingest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":7,"rejected":0,"dropped":0}`, rec.Body.String())

	rec = get(t, full, "/journal?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"plugin.started"`)

	assert.Equal(t, http.StatusBadRequest, get(t, full, "/journal?limit=0").Code)

	broken := New(logx.Nop(), Sources{Plugins: pluginsStub{}, Journal: journalStub{err: errors.New("disk")}}).Handler()
	assert.Equal(t, http.StatusInternalServerError, get(t, broken, "/journal").Code)
}
