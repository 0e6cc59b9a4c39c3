package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/otarkhan/slotwatch/internal/history"
	"github.com/otarkhan/slotwatch/internal/model"
	"github.com/otarkhan/slotwatch/internal/probe"
	"github.com/otarkhan/slotwatch/internal/server"
	"github.com/otarkhan/slotwatch/internal/session"
	"github.com/otarkhan/slotwatch/internal/testutil"
)

const testSecret = "test-secret"

type fakeChecker struct {
	result *model.CheckResult
	err    error
	events []session.Event

	gotCreds model.Credentials
	gotAppd  string
}

func (f *fakeChecker) Check(ctx context.Context, creds model.Credentials, appd string) (*model.CheckResult, error) {
	return f.CheckStream(ctx, creds, appd, nil)
}

func (f *fakeChecker) CheckStream(ctx context.Context, creds model.Credentials, appd string, sink session.EventSink) (*model.CheckResult, error) {
	f.gotCreds = creds
	f.gotAppd = appd
	if sink != nil {
		for _, ev := range f.events {
			sink(ev)
		}
	}
	return f.result, f.err
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []history.Record
}

func (f *fakeHistory) Add(_ context.Context, rec history.Record) (history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return rec, nil
}

func (f *fakeHistory) List(_ context.Context, appd string, _ int) ([]history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []history.Record{}
	for _, rec := range f.recs {
		if appd == "" || rec.Appd == appd {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeProber struct {
	result *probe.Result
	err    error
}

func (f *fakeProber) Probe(context.Context) (*probe.Result, error) {
	return f.result, f.err
}

func newTestServer(chk server.SlotChecker, hist server.History, prober server.Prober) *httptest.Server {
	srv := server.NewServer(server.Config{
		ListenAddr: ":0",
		APISecret:  testSecret,
	}, chk, hist, prober, &testutil.DummyLogger{})
	return httptest.NewServer(srv)
}

func postCheck(t *testing.T, url string, body any, auth bool) *http.Response {
	t.Helper()
	enc, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/check-slots", bytes.NewReader(enc))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return res
}

func validBody() map[string]string {
	return map[string]string{"username": "alice@example.com", "password": "hunter2", "appd": "ABC-123"}
}

func TestOpenEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(&fakeChecker{}, nil, nil)
	t.Cleanup(ts.Close)

	for _, path := range []string{"/", "/health"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, res.StatusCode)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	ts := newTestServer(&fakeChecker{}, &fakeHistory{}, &fakeProber{})
	t.Cleanup(ts.Close)

	res := postCheck(t, ts.URL, validBody(), false)
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST = %d, want 401", res.StatusCode)
	}

	for _, path := range []string{"/history", "/probe"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusUnauthorized {
			t.Errorf("unauthenticated GET %s = %d, want 401", path, res.StatusCode)
		}
	}

	// Query token is the websocket-friendly equivalent of the header.
	res2, err := http.Get(ts.URL + "/probe?token=" + testSecret)
	if err != nil {
		t.Fatalf("GET /probe: %v", err)
	}
	res2.Body.Close()
	if res2.StatusCode == http.StatusUnauthorized {
		t.Error("query token rejected")
	}
}

func TestCheckSlotsValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(&fakeChecker{}, nil, nil)
	t.Cleanup(ts.Close)

	for _, body := range []map[string]string{
		{},
		{"username": "a"},
		{"username": "a", "password": "b"},
		{"password": "b", "appd": "c"},
	} {
		res := postCheck(t, ts.URL, body, true)
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %v = %d, want 400", body, res.StatusCode)
		}
	}
}

func TestCheckSlotsSuccess(t *testing.T) {
	t.Parallel()

	chk := &fakeChecker{result: &model.CheckResult{
		Slots: []model.SlotRecord{
			{Location: "Toronto", Consulate: "Toronto", Date: "2026-09-10", Available: true},
		},
		TotalSlots: 1,
		CheckedAt:  time.Now().UTC(),
	}}
	hist := &fakeHistory{}
	ts := newTestServer(chk, hist, nil)
	t.Cleanup(ts.Close)

	res := postCheck(t, ts.URL, validBody(), true)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var body struct {
		Success    bool               `json:"success"`
		Slots      []model.SlotRecord `json:"slots"`
		TotalSlots int                `json:"totalSlots"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.Success || body.TotalSlots != 1 || len(body.Slots) != 1 {
		t.Errorf("body = %+v", body)
	}
	if chk.gotAppd != "ABC-123" || chk.gotCreds.Username != "alice@example.com" {
		t.Errorf("checker received %q / %+v", chk.gotAppd, chk.gotCreds)
	}

	recs, _ := hist.List(context.Background(), "ABC-123", 0)
	if len(recs) != 1 || !recs[0].Success || recs[0].TotalSlots != 1 {
		t.Errorf("history = %+v, want one successful record", recs)
	}
}

func TestCheckSlotsFailureMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        *model.Error
		wantStatus int
	}{
		{
			name:       "bot challenge",
			err:        &model.Error{Kind: model.KindBotChallenge, Message: "content marker: just a moment"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "form not found",
			err:        &model.Error{Kind: model.KindFormNotFound, Message: "no username field appeared"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "field not found",
			err:        &model.Error{Kind: model.KindFieldNotFound, Message: "password field not located"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "submit not found",
			err:        &model.Error{Kind: model.KindSubmitNotFound, Message: "no submit control"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unknown application reference",
			err:        &model.Error{Kind: model.KindFetchError, HTTPStatus: 404, Message: "not found"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "upstream fetch failure",
			err:        &model.Error{Kind: model.KindFetchError, HTTPStatus: 500, Message: "boom"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "navigation timeout",
			err:        &model.Error{Kind: model.KindNavigationTimeout, Message: "did not settle"},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unclassified",
			err:        &model.Error{Kind: model.KindUnknown, Message: "chrome crashed"},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hist := &fakeHistory{}
			ts := newTestServer(&fakeChecker{err: tt.err}, hist, nil)
			t.Cleanup(ts.Close)

			res := postCheck(t, ts.URL, validBody(), true)
			defer res.Body.Close()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}

			var body struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body.Success {
				t.Error("failure response claims success")
			}
			if body.Error != string(tt.err.Kind) {
				t.Errorf("error = %q, want %q", body.Error, tt.err.Kind)
			}

			recs, _ := hist.List(context.Background(), "", 0)
			if len(recs) != 1 || recs[0].Success || recs[0].ErrorKind != string(tt.err.Kind) {
				t.Errorf("history = %+v, want one failed record with kind %q", recs, tt.err.Kind)
			}
		})
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	hist.Add(context.Background(), history.Record{ID: "1", Appd: "ABC-123", Success: true, TotalSlots: 2})
	ts := newTestServer(&fakeChecker{}, hist, nil)
	t.Cleanup(ts.Close)

	res, err := http.Get(ts.URL + "/history?appd=ABC-123&token=" + testSecret)
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var recs []history.Record
	if err := json.NewDecoder(res.Body).Decode(&recs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(recs) != 1 || recs[0].Appd != "ABC-123" {
		t.Errorf("records = %+v", recs)
	}
}

func TestProbeEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeChecker{}, nil, &fakeProber{result: &probe.Result{
		StatusCode: 200, IsChallenge: true, Reason: "content marker: just a moment",
	}})
	t.Cleanup(ts.Close)

	res, err := http.Get(ts.URL + "/probe?token=" + testSecret)
	if err != nil {
		t.Fatalf("GET /probe: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var body probe.Result
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.IsChallenge || body.StatusCode != 200 {
		t.Errorf("body = %+v", body)
	}
}

func TestWebsocketCheckStreamsStates(t *testing.T) {
	t.Parallel()

	chk := &fakeChecker{
		result: &model.CheckResult{TotalSlots: 0, Slots: []model.SlotRecord{}, CheckedAt: time.Now().UTC()},
		events: []session.Event{
			{State: session.StateStart},
			{State: session.StateNavigated},
			{State: session.StateAuthenticated},
		},
	}
	ts := newTestServer(chk, nil, nil)
	t.Cleanup(ts.Close)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/check?token=" + testSecret
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(validBody()); err != nil {
		t.Fatalf("sending request frame: %v", err)
	}

	var states []string
	for {
		var frame struct {
			Type    string `json:"type"`
			State   string `json:"state"`
			Success *bool  `json:"success"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading frame: %v (states so far %v)", err, states)
		}
		if frame.Type == "state" {
			states = append(states, frame.State)
			continue
		}
		if frame.Type != "result" {
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
		if frame.Success == nil || !*frame.Success {
			t.Errorf("result frame = %+v, want success", frame)
		}
		break
	}
	if len(states) != 3 || states[len(states)-1] != string(session.StateAuthenticated) {
		t.Errorf("streamed states = %v", states)
	}
}

// Every transition reaches the client even when the run emits far more
// events than the channel buffers.
func TestWebsocketStreamIsLossless(t *testing.T) {
	t.Parallel()

	var events []session.Event
	for i := 0; i < 50; i++ {
		events = append(events, session.Event{State: session.StateChallengeCheck})
	}
	events = append(events, session.Event{State: session.StateAuthenticated})

	chk := &fakeChecker{
		result: &model.CheckResult{Slots: []model.SlotRecord{}, CheckedAt: time.Now().UTC()},
		events: events,
	}
	ts := newTestServer(chk, nil, nil)
	t.Cleanup(ts.Close)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/check?token=" + testSecret
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(validBody()); err != nil {
		t.Fatalf("sending request frame: %v", err)
	}

	stateFrames := 0
	for {
		var frame struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading frame after %d state frames: %v", stateFrames, err)
		}
		if frame.Type == "state" {
			stateFrames++
			continue
		}
		break
	}
	if stateFrames != len(events) {
		t.Errorf("received %d state frames, want %d", stateFrames, len(events))
	}
}

func TestWebsocketRejectsBadFirstFrame(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeChecker{}, nil, nil)
	t.Cleanup(ts.Close)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/check?token=" + testSecret
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"username": "a"}); err != nil {
		t.Fatalf("sending request frame: %v", err)
	}
	var frame struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if frame.Type != "error" || frame.Error == "" {
		t.Errorf("frame = %+v, want an error frame", frame)
	}
}
