package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/player/playertest"
	"radio-tui/session"
)

var testStations = []model.Station{
	{ID: "kexp", Name: "KEXP", URL: "http://kexp.example/stream", Tags: "indie,seattle", Country: "United States"},
	{ID: "wfmu", Name: "WFMU", URL: "http://wfmu.example/stream", Tags: "freeform", Country: "United States"},
}

type testEnv struct {
	server *Server
	host   *host.Host
	engine *playertest.Engine
}

// failingController overrides Play on a real host
type failingController struct {
	*host.Host
	playErr error
}

func (f *failingController) Play(model.Station) error { return f.playErr }

func newTestEnv(t *testing.T) *testEnv {
	logger := zaptest.NewLogger(t).Sugar()
	engine := playertest.NewEngine()
	h := host.New(logger, engine, nil)
	t.Cleanup(h.Close)

	return &testEnv{
		server: NewServer(logger, 0, h, model.NewCatalog(testStations)),
		host:   h,
		engine: engine,
	}
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, statusResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var status statusResponse
	if rec.Code < 400 && !strings.HasPrefix(path, "/api/stations") {
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode %s response: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec, status
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "9.9.9.9:1234", "1.1.1.1"},
		{"nginx", map[string]string{"X-Real-IP": "2.2.2.2"}, "9.9.9.9:1234", "2.2.2.2"},
		{"forwarded", map[string]string{"X-Forwarded-For": "3.3.3.3, 10.0.0.1"}, "9.9.9.9:1234", "3.3.3.3"},
		{"remote", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := getRealIP(req); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStations(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/stations?q=indie")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stations []stationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stations); err != nil {
		t.Fatalf("decode stations: %v", err)
	}
	if len(stations) != 1 || stations[0].ID != "kexp" {
		t.Errorf("expected only kexp, got %+v", stations)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/stations")
	stations = nil
	json.Unmarshal(rec.Body.Bytes(), &stations)
	if len(stations) != 2 {
		t.Errorf("expected every station without a query, got %d", len(stations))
	}
}

type fakeDirectory struct {
	stations []model.Station
	err      error
	queries  []string
}

func (f *fakeDirectory) Search(ctx context.Context, name string, limit int) ([]model.Station, error) {
	f.queries = append(f.queries, name)
	return f.stations, f.err
}

func decodeStations(t *testing.T, rec *httptest.ResponseRecorder) []stationResponse {
	t.Helper()

	var stations []stationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stations); err != nil {
		t.Fatalf("decode stations: %v (%s)", err, rec.Body.String())
	}
	return stations
}

func TestStations_SearchesDirectory(t *testing.T) {
	env := newTestEnv(t)
	dir := &fakeDirectory{stations: []model.Station{
		{ID: "kexp", Name: "KEXP (directory)", URL: "http://kexp.example/other"},
		{ID: "kcrw", Name: "KCRW", URL: "http://kcrw.example/stream", Tags: "eclectic"},
	}}
	env.server.SearchDirectory(dir)

	rec, _ := env.do(t, http.MethodGet, "/api/stations?q=k")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	stations := decodeStations(t, rec)
	if len(stations) != 2 || stations[0].ID != "kexp" || stations[1].ID != "kcrw" {
		t.Fatalf("expected local kexp then kcrw, got %+v", stations)
	}
	if stations[0].Name != "KEXP" {
		t.Errorf("local entry should win over the directory, got %q", stations[0].Name)
	}
	if len(dir.queries) != 1 || dir.queries[0] != "k" {
		t.Errorf("unexpected directory queries %v", dir.queries)
	}

	rec, status := env.do(t, http.MethodPost, "/api/play/kcrw")
	if rec.Code != http.StatusAccepted || status.Station == nil || status.Station.ID != "kcrw" {
		t.Fatalf("expected a found station to be playable, got %d %+v", rec.Code, status)
	}

	// listing without a query does not hit the directory
	env.do(t, http.MethodGet, "/api/stations")
	if len(dir.queries) != 1 {
		t.Errorf("directory queried without a search term")
	}
}

func TestStations_DirectoryFailureServesCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.server.SearchDirectory(&fakeDirectory{err: errors.New("directory unreachable")})

	rec, _ := env.do(t, http.MethodGet, "/api/stations?q=freeform")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stations := decodeStations(t, rec); len(stations) != 1 || stations[0].ID != "wfmu" {
		t.Errorf("expected local wfmu only, got %+v", stations)
	}
}

func TestPlayPauseResumeStop(t *testing.T) {
	env := newTestEnv(t)

	rec, status := env.do(t, http.MethodPost, "/api/play/kexp")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if status.State != "loading" || status.Station == nil || status.Station.ID != "kexp" {
		t.Fatalf("unexpected play response %+v", status)
	}

	env.engine.Last().Ready()

	_, status = env.do(t, http.MethodGet, "/api/status")
	if status.State != "playing" {
		t.Fatalf("expected playing, got %+v", status)
	}

	_, status = env.do(t, http.MethodPost, "/api/pause")
	if status.State != "paused" {
		t.Errorf("expected paused, got %+v", status)
	}

	rec, status = env.do(t, http.MethodPost, "/api/resume")
	if rec.Code != http.StatusOK || status.State != "playing" {
		t.Errorf("expected playing after resume, got %d %+v", rec.Code, status)
	}

	_, status = env.do(t, http.MethodPost, "/api/stop")
	if status.State != "idle" || status.Station != nil {
		t.Errorf("expected idle without station, got %+v", status)
	}
}

func TestPlay_UnknownStation(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/play/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(env.engine.Handles()) != 0 {
		t.Error("no stream should be opened for an unknown station")
	}
}

func TestPlay_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: no url", session.ErrInvalidStation), http.StatusBadRequest},
		{fmt.Errorf("%w: no device", session.ErrStreamFailure), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		env := newTestEnv(t)
		control := &failingController{Host: env.host, playErr: tt.err}
		srv := NewServer(zaptest.NewLogger(t).Sugar(), 0, control, model.NewCatalog(testStations))

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/play/kexp", nil))

		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestResume_FromIdleConflicts(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/resume")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stop", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) (string, statusResponse) {
	t.Helper()

	var name, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			var status statusResponse
			if name == "state" {
				if err := json.Unmarshal([]byte(data), &status); err != nil {
					t.Fatalf("decode event data %q: %v", data, err)
				}
			}
			return name, status
		}
	}
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)

	httpServer := httptest.NewServer(env.server.Handler())
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	name, status := readEvent(t, reader)
	if name != "state" || status.State != "idle" {
		t.Fatalf("expected initial idle state, got %s %+v", name, status)
	}
	if env.server.events.Clients() != 1 {
		t.Errorf("expected one event client")
	}

	env.host.Play(testStations[0])
	env.engine.Last().Fail("network unreachable")

	want := []struct {
		name  string
		state string
	}{
		{"state", "loading"},
		{"state", "error"},
		{"error", ""},
	}
	for _, w := range want {
		name, status := readEvent(t, reader)
		if name != w.name || status.State != w.state {
			t.Errorf("expected %s %q, got %s %+v", w.name, w.state, name, status)
		}
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.server.events.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("event client was not detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
