package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	api := NewScopedAPI("cache", NewScopedAPI("outer", rec))

	api.ReportBroken("store.write", errors.New("disk full"), "a")
	api.ReportWarning("store.sweep")
	api.ReportDebug("removed stale partial file")
	api.ReportCount("store.entries", 3)

	broken := rec.Reports(KindBroken, "")
	require.Len(t, broken, 1)
	require.Equal(t, "outer: cache: store.write", broken[0].Id)
	require.Len(t, broken[0].Params, 2)

	require.Len(t, rec.Reports(KindWarning, "store.sweep"), 1)
	require.Len(t, rec.Reports(KindDebug, "stale partial file"), 1)

	counts := rec.Reports(KindCount, "store.entries")
	require.Len(t, counts, 1)
	require.EqualValues(t, 3, counts[0].Count)

	require.Empty(t, rec.Reports(KindBroken, "store.sweep"))
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	rec := &Recorder{}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentResty(client, rec, "test")

	res, err := client.R().Get("/ping")
	require.NoError(t, err)
	require.Equal(t, "ok", res.String())

	require.Len(t, rec.Reports(KindDebug, report_resty_request), 1)
	require.Len(t, rec.Reports(KindDebug, report_resty_response), 1)
	require.Empty(t, rec.Reports(KindBroken, ""))
}

func TestInstrumentRestyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	rec := &Recorder{}
	client := resty.New().SetBaseURL(url)
	InstrumentResty(client, rec, "test")

	_, err := client.R().Get("/ping")
	require.Error(t, err)
	require.Len(t, rec.Reports(KindBroken, report_resty_response), 1)
}
