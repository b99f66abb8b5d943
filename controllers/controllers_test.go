package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"preventanyl/models"
	"preventanyl/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pagedHistory struct {
	gotDevice string
	gotPage   int
	gotSize   int
	err       error
}

func (p *pagedHistory) List(_ context.Context, deviceID string, page, pageSize int) ([]models.HelpDispatch, int64, error) {
	p.gotDevice, p.gotPage, p.gotSize = deviceID, page, pageSize
	if p.err != nil {
		return nil, 0, p.err
	}
	return []models.HelpDispatch{{DeviceID: deviceID, Success: true}}, 45, nil
}

func serve(handler gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/test", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestListDispatches(t *testing.T) {
	history := &pagedHistory{}
	hc := NewHelpController(nil, history, nil)

	w := serve(hc.ListDispatches, "/test?deviceId=phone-1&page=2&pageSize=500")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if history.gotDevice != "phone-1" || history.gotPage != 2 || history.gotSize != 100 {
		t.Errorf("List called with %q %d %d", history.gotDevice, history.gotPage, history.gotSize)
	}
	resp := decode(t, w)
	if resp.Meta == nil || resp.Meta.Total != 45 || resp.Meta.TotalPages != 1 {
		t.Errorf("meta = %+v", resp.Meta)
	}

	w = serve(hc.ListDispatches, "/test")
	if history.gotPage != 1 || history.gotSize != 20 {
		t.Errorf("defaults = %d %d", history.gotPage, history.gotSize)
	}
	if resp := decode(t, w); resp.Meta.TotalPages != 3 {
		t.Errorf("total pages = %d", resp.Meta.TotalPages)
	}
}

func TestListDispatchesFailures(t *testing.T) {
	w := serve(NewHelpController(nil, nil, nil).ListDispatches, "/test")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("without history = %d", w.Code)
	}

	w = serve(NewHelpController(nil, &pagedHistory{err: errors.New("boom")}, nil).ListDispatches, "/test")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failing history = %d", w.Code)
	}

	w = serve(NewHelpController(nil, &pagedHistory{}, nil).ListDispatches, "/test?page=first")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad query = %d", w.Code)
	}
}

type fixedCounter struct {
	gotRole string
	count   int64
	err     error
}

func (f *fixedCounter) CountByRole(_ context.Context, role string) (int64, error) {
	f.gotRole = role
	return f.count, f.err
}

func TestCountAngels(t *testing.T) {
	if w := serve(NewHelpController(nil, nil, nil).CountAngels, "/test"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without directory = %d", w.Code)
	}
	if w := serve(NewHelpController(nil, nil, &fixedCounter{err: errors.New("boom")}).CountAngels, "/test"); w.Code != http.StatusInternalServerError {
		t.Errorf("failing directory = %d", w.Code)
	}

	counter := &fixedCounter{count: 12}
	w := serve(NewHelpController(nil, nil, counter).CountAngels, "/test")
	if w.Code != http.StatusOK || counter.gotRole != models.RoleAngel {
		t.Fatalf("count = %d role %q", w.Code, counter.gotRole)
	}
	var body struct {
		Data struct {
			Angels int64 `json:"angels"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Angels != 12 {
		t.Errorf("angels = %d", body.Data.Angels)
	}
}

func TestHealth(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	hc := NewHealthController("1.0.0", map[string]HealthCheck{"mongodb": healthy}, func() interface{} {
		return gin.H{"activeWorkflows": 2}
	})
	w := serve(hc.Health, "/test")
	if w.Code != http.StatusOK {
		t.Fatalf("healthy = %d", w.Code)
	}
	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
		Stats    map[string]int    `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Services["mongodb"] != "healthy" || body.Stats["activeWorkflows"] != 2 {
		t.Errorf("body = %+v", body)
	}

	hc = NewHealthController("1.0.0", map[string]HealthCheck{"mongodb": healthy, "redis": failing}, nil)
	w = serve(hc.Health, "/test")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded = %d %s", w.Code, w.Body.String())
	}
}

type rejectingAuth struct{}

func (rejectingAuth) Authenticate(context.Context, string) (*models.User, error) {
	return nil, errors.New("invalid token")
}

func TestHandleWebSocketValidation(t *testing.T) {
	hub := websocket.NewHub(websocket.DefaultHubConfig())
	defer hub.Shutdown()
	wsc := NewWebSocketController(hub, rejectingAuth{})

	if w := serve(wsc.HandleWebSocket, "/test"); w.Code != http.StatusBadRequest {
		t.Errorf("without device = %d", w.Code)
	}
	if w := serve(wsc.HandleWebSocket, "/test?deviceId=phone-1&token=bad"); w.Code == http.StatusSwitchingProtocols || w.Code < 400 {
		t.Errorf("bad token = %d", w.Code)
	}
	// a plain GET is not an upgrade request
	if w := serve(wsc.HandleWebSocket, "/test?deviceId=phone-1"); w.Code != http.StatusBadRequest {
		t.Errorf("non-upgrade request = %d", w.Code)
	}
}
