package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vivarium/config"
	"vivarium/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(srv *httptest.Server) *APIService {
	return NewAPIService(&config.Config{APIBaseURL: srv.URL}, zap.NewNop())
}

func TestFetchSeriesFlattensTuples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/s1/day", r.URL.Path)
		fmt.Fprint(w, `[{"temperature": [[1700000600, 21.9], [1700000000, 21.5]]}]`)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	points, err := api.FetchSeries(context.Background(), "s1", models.PeriodDay)
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Tuples come back ordered by timestamp regardless of wire order.
	assert.Equal(t, models.SeriesPoint{Timestamp: 1700000000, Value: 21.5}, points[0])
	assert.Equal(t, models.SeriesPoint{Timestamp: 1700000600, Value: 21.9}, points[1])
}

func TestFetchSeriesSkipsShortTuples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"temperature": [[1700000000], [1700000600, 21.9]]}]`)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	points, err := api.FetchSeries(context.Background(), "s1", models.PeriodDay)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(1700000600), points[0].Timestamp)
}

func TestFetchSeriesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	_, err := api.FetchSeries(context.Background(), "s1", models.PeriodDay)
	assert.Error(t, err)
}

func TestFetchDoorHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/doors", r.URL.Path)
		fmt.Fprint(w, `{"terrarium": [[1700000000, "open"], [1700000500, "closed"]]}`)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	doors, err := api.FetchDoorHistory(context.Background())
	require.NoError(t, err)
	require.Contains(t, doors, "terrarium")

	samples := doors["terrarium"]
	require.Len(t, samples, 2)
	assert.Equal(t, models.DoorOpen, samples[0].State)
	assert.Equal(t, models.DoorClosed, samples[1].State)
	assert.Equal(t, int64(1700000500), samples[1].Timestamp)
}

func TestSwitchCommands(t *testing.T) {
	paths := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
	}))
	defer srv.Close()

	api := newTestAPI(srv)

	require.NoError(t, api.ToggleSwitch(context.Background(), "sw1"))
	assert.Equal(t, "/api/switch/toggle/sw1", <-paths)

	require.NoError(t, api.SetSwitchState(context.Background(), "sw1", 80))
	assert.Equal(t, "/api/switch/state/sw1/80", <-paths)
}

func TestSubmitForm(t *testing.T) {
	type received struct {
		path string
		body string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		got <- received{path: r.URL.Path, body: string(buf)}
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	record := &models.FormRecord{Items: []map[string]interface{}{{"name": "A", "alarm_min": "5"}}}

	require.NoError(t, api.SubmitForm(context.Background(), models.FormSensors, record))

	r := <-got
	assert.Equal(t, "/api/config/sensors", r.path)
	assert.JSONEq(t, `[{"name":"A","alarm_min":"5"}]`, r.body)
}
