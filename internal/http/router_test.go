package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository/memory"
	"github.com/splax/teamup/internal/service/auth"
	"github.com/splax/teamup/internal/service/inbox"
	"github.com/splax/teamup/internal/service/membership"
	"github.com/splax/teamup/internal/service/offer"
	"github.com/splax/teamup/internal/ws"
	"github.com/splax/teamup/pkg/config"
)

type testServer struct {
	router *Router
	hub    *ws.Hub
}

func newTestServer(t *testing.T, dbHealth func(context.Context) error) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	hub := ws.NewHub()
	notifications := inbox.New(store, hub, logger)
	dispatcher := notify.NewDispatcher(logger, time.Second).Add("inbox", notifications)
	cfg := config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	router := NewRouter(Dependencies{
		Logger:     logger,
		Auth:       auth.New(store, logger, cfg),
		Membership: membership.New(store, dispatcher, logger),
		Offers:     offer.New(store, dispatcher, logger),
		Inbox:      notifications,
		DBHealth:   dbHealth,
	})
	t.Cleanup(func() {
		router.Close()
		hub.Close()
	})
	return &testServer{router: router, hub: hub}
}

type registered struct {
	ID    string
	Token string
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, name string) registered {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/individuals", "", map[string]string{"name": name, "email": name + "@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", name, rec.Code, rec.Body.String())
	}
	var resp struct {
		Individual domain.Individual `json:"individual"`
		Tokens     auth.TokenPair    `json:"tokens"`
	}
	decode(t, rec, &resp)
	return registered{ID: resp.Individual.ID, Token: resp.Tokens.AccessToken}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d body %s", want, rec.Code, rec.Body.String())
	}
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, kind domain.Kind) {
	t.Helper()
	expectStatus(t, rec, status)
	var body map[string]string
	decode(t, rec, &body)
	if body["code"] != string(kind) {
		t.Fatalf("expected code %s, got %v", kind, body)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, func(context.Context) error { return nil })
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)

	down := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })
	rec = down.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, nil)
	expectStatus(t, srv.do(t, http.MethodGet, "/me/team", "", nil), http.StatusUnauthorized)
	expectStatus(t, srv.do(t, http.MethodGet, "/me/team", "not-a-jwt", nil), http.StatusUnauthorized)
	expectStatus(t, srv.do(t, http.MethodGet, "/nowhere", "", nil), http.StatusNotFound)
	expectStatus(t, srv.do(t, http.MethodDelete, "/healthz", "", nil), http.StatusMethodNotAllowed)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/individuals", "", map[string]string{"name": "x", "email": "nope"})
	expectCode(t, rec, http.StatusBadRequest, domain.KindInvalidArgument)

	rec = srv.do(t, http.MethodPost, "/individuals", "", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	srv.register(t, "ana")
	rec = srv.do(t, http.MethodPost, "/individuals", "", map[string]string{"name": "ana again", "email": "ANA@example.com"})
	expectCode(t, rec, http.StatusBadRequest, domain.KindInvalidArgument)
}

func TestApplyDecideFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	lead := srv.register(t, "lead")
	dev := srv.register(t, "dev")
	late := srv.register(t, "late")

	rec := srv.do(t, http.MethodPost, "/teams", lead.Token, map[string]any{
		"name":      "alpha",
		"positions": map[string]int{"backend": 1, "manager": 1},
		"role":      "manager",
	})
	expectStatus(t, rec, http.StatusCreated)
	var team domain.Team
	decode(t, rec, &team)

	rec = srv.do(t, http.MethodPost, "/teams/"+team.ID+"/applications", dev.Token, map[string]string{"role": "backend"})
	expectStatus(t, rec, http.StatusCreated)
	var application domain.Offer
	decode(t, rec, &application)

	rec = srv.do(t, http.MethodGet, "/notifications", lead.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	var inboxResp struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	decode(t, rec, &inboxResp)
	if len(inboxResp.Notifications) == 0 || inboxResp.Notifications[0].Kind != string(notify.KindOfferReceived) {
		t.Fatalf("expected OFFER_RECEIVED in leader inbox, got %+v", inboxResp.Notifications)
	}

	rec = srv.do(t, http.MethodPost, "/offers/"+application.ID+"/decision", dev.Token, map[string]bool{"accept": true})
	expectCode(t, rec, http.StatusForbidden, domain.KindNotAuthorized)

	rec = srv.do(t, http.MethodPost, "/offers/"+application.ID+"/decision", lead.Token, map[string]any{})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = srv.do(t, http.MethodPost, "/offers/"+application.ID+"/decision", lead.Token, map[string]bool{"accept": true})
	expectStatus(t, rec, http.StatusOK)

	rec = srv.do(t, http.MethodPost, "/offers/"+application.ID+"/decision", lead.Token, map[string]bool{"accept": true})
	expectCode(t, rec, http.StatusConflict, domain.KindAlreadyDecided)

	rec = srv.do(t, http.MethodPost, "/teams/"+team.ID+"/applications", late.Token, map[string]string{"role": "backend"})
	expectCode(t, rec, http.StatusConflict, domain.KindNoVacancy)

	rec = srv.do(t, http.MethodGet, "/me/team", dev.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	var view membership.TeamView
	decode(t, rec, &view)
	if view.Team.ID != team.ID || len(view.Members) != 2 {
		t.Fatalf("unexpected team view %+v", view)
	}

	rec = srv.do(t, http.MethodPost, "/me/leave", lead.Token, nil)
	expectCode(t, rec, http.StatusConflict, domain.KindLeaderCannotLeave)

	rec = srv.do(t, http.MethodPost, "/teams/current/fire", dev.Token, map[string]string{"individual_id": lead.ID})
	expectCode(t, rec, http.StatusForbidden, domain.KindNotLeader)

	rec = srv.do(t, http.MethodPut, "/teams/"+team.ID+"/positions", lead.Token, map[string]int{"backend": 0, "manager": 1})
	expectCode(t, rec, http.StatusConflict, domain.KindCapacityConflict)

	rec = srv.do(t, http.MethodPost, "/teams/current/complete", lead.Token, map[string]string{"result_url": "ftp://alpha.example.com"})
	expectCode(t, rec, http.StatusBadRequest, domain.KindInvalidArgument)

	rec = srv.do(t, http.MethodPost, "/teams/current/complete", lead.Token, map[string]string{"result_url": "https://alpha.example.com"})
	expectStatus(t, rec, http.StatusOK)

	rec = srv.do(t, http.MethodGet, "/me/history", dev.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	var history struct {
		Memberships []domain.TeamMember `json:"memberships"`
	}
	decode(t, rec, &history)
	if len(history.Memberships) != 1 || history.Memberships[0].Status != domain.MemberStatusComplete {
		t.Fatalf("expected COMPLETE history, got %+v", history.Memberships)
	}
}

func TestScoutAndCancel(t *testing.T) {
	srv := newTestServer(t, nil)
	lead := srv.register(t, "lead")
	dev := srv.register(t, "dev")

	rec := srv.do(t, http.MethodPost, "/teams", lead.Token, map[string]any{
		"name":      "beta",
		"positions": map[string]int{"designer": 1, "manager": 1},
		"role":      "manager",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = srv.do(t, http.MethodPost, "/teams/current/scouts", lead.Token, map[string]string{"individual_id": dev.ID, "role": "chef"})
	expectCode(t, rec, http.StatusBadRequest, domain.KindInvalidArgument)

	rec = srv.do(t, http.MethodPost, "/teams/current/scouts", lead.Token, map[string]string{"individual_id": dev.ID, "role": "designer"})
	expectStatus(t, rec, http.StatusCreated)
	var scout domain.Offer
	decode(t, rec, &scout)

	rec = srv.do(t, http.MethodGet, "/me/offers", dev.Token, nil)
	expectStatus(t, rec, http.StatusOK)

	expectCode(t, srv.do(t, http.MethodDelete, "/offers/"+scout.ID, dev.Token, nil), http.StatusForbidden, domain.KindNotAuthorized)
	expectStatus(t, srv.do(t, http.MethodDelete, "/offers/"+scout.ID, lead.Token, nil), http.StatusNoContent)
	expectCode(t, srv.do(t, http.MethodPost, "/offers/"+scout.ID+"/decision", dev.Token, map[string]bool{"accept": true}), http.StatusNotFound, domain.KindNotFound)

	rec = srv.do(t, http.MethodGet, "/teams/current/offers", lead.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	var listed struct {
		Offers []domain.Offer `json:"offers"`
	}
	decode(t, rec, &listed)
	if len(listed.Offers) != 0 {
		t.Fatalf("cancelled scout must not be listed, got %+v", listed.Offers)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	srv := newTestServer(t, nil)
	lead := srv.register(t, "lead")
	dev := srv.register(t, "dev")

	rec := srv.do(t, http.MethodPost, "/teams", lead.Token, map[string]any{
		"name":      "gamma",
		"positions": map[string]int{"frontend": 1, "manager": 1},
		"role":      "manager",
	})
	expectStatus(t, rec, http.StatusCreated)
	var team domain.Team
	decode(t, rec, &team)
	expectStatus(t, srv.do(t, http.MethodPost, "/teams/"+team.ID+"/applications", dev.Token, map[string]string{"role": "frontend"}), http.StatusCreated)

	rec = srv.do(t, http.MethodGet, "/notifications", lead.Token, nil)
	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	decode(t, rec, &resp)
	if len(resp.Notifications) == 0 {
		t.Fatal("expected a notification")
	}
	id := resp.Notifications[0].ID
	path := "/notifications/" + jsonNumber(id) + "/read"

	expectCode(t, srv.do(t, http.MethodPost, path, dev.Token, nil), http.StatusNotFound, domain.KindNotFound)
	expectStatus(t, srv.do(t, http.MethodPost, path, lead.Token, nil), http.StatusNoContent)
}

func TestNotificationsWebsocketStreamsEvents(t *testing.T) {
	srv := newTestServer(t, nil)
	lead := srv.register(t, "lead")
	dev := srv.register(t, "dev")

	rec := srv.do(t, http.MethodPost, "/teams", lead.Token, map[string]any{
		"name":      "delta",
		"positions": map[string]int{"backend": 2, "manager": 1},
		"role":      "manager",
	})
	expectStatus(t, rec, http.StatusCreated)
	var team domain.Team
	decode(t, rec, &team)

	httpSrv := httptest.NewServer(srv.router)
	defer httpSrv.Close()
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/notifications?access_token=" + lead.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for srv.hub.Subscribers(lead.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expectStatus(t, srv.do(t, http.MethodPost, "/teams/"+team.ID+"/applications", dev.Token, map[string]string{"role": "backend"}), http.StatusCreated)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Kind != string(notify.KindOfferReceived) {
		t.Fatalf("expected OFFER_RECEIVED frame, got %s", data)
	}
}

func TestNotificationsSSEStreamsEvents(t *testing.T) {
	srv := newTestServer(t, nil)
	lead := srv.register(t, "lead")
	dev := srv.register(t, "dev")

	rec := srv.do(t, http.MethodPost, "/teams", lead.Token, map[string]any{
		"name":      "echo",
		"positions": map[string]int{"backend": 1, "manager": 1},
		"role":      "manager",
	})
	expectStatus(t, rec, http.StatusCreated)
	var team domain.Team
	decode(t, rec, &team)

	httpSrv := httptest.NewServer(srv.router)
	defer httpSrv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/notifications/stream?access_token="+lead.Token, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for srv.hub.Subscribers(lead.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sse client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expectStatus(t, srv.do(t, http.MethodPost, "/teams/"+team.ID+"/applications", dev.Token, map[string]string{"role": "backend"}), http.StatusCreated)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before the event arrived")
			}
			if data, found := strings.CutPrefix(line, "data: "); found {
				if !strings.Contains(data, string(notify.KindOfferReceived)) {
					t.Fatalf("unexpected event data %s", data)
				}
				cancel()
				for range lines {
				}
				return
			}
		case <-timeout:
			t.Fatal("no event on the stream")
		}
	}
}

func TestStatusForKind(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindNotFound:          http.StatusNotFound,
		domain.KindNotAuthorized:     http.StatusForbidden,
		domain.KindNotLeader:         http.StatusForbidden,
		domain.KindNoVacancy:         http.StatusConflict,
		domain.KindAlreadyOnTeam:     http.StatusConflict,
		domain.KindAlreadyDecided:    http.StatusConflict,
		domain.KindCannotFireSelf:    http.StatusConflict,
		domain.KindLeaderCannotLeave: http.StatusConflict,
		domain.KindCapacityConflict:  http.StatusConflict,
		domain.KindInvalidArgument:   http.StatusBadRequest,
		domain.Kind(""):              http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusForKind(kind); got != want {
			t.Fatalf("statusForKind(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestValidResultURL(t *testing.T) {
	cases := map[string]bool{
		"":                          true,
		"   ":                       true,
		"https://demo.example.com":  true,
		"http://demo.example.com/x": true,
		"ftp://demo.example.com":    false,
		"demo.example.com":          false,
		"not a url":                 false,
	}
	for raw, want := range cases {
		if got := validResultURL(raw); got != want {
			t.Fatalf("validResultURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func jsonNumber(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
