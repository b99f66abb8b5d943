package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"preventanyl/models"
	"preventanyl/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticUsers map[string]*models.User

func (s staticUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, utils.NewUserNotFoundError()
}

func perform(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("response is not an error: %s", w.Body.String())
	}
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("test-secret", time.Minute, time.Hour)

	admin := &models.User{ID: primitive.NewObjectID(), Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	inactive := &models.User{ID: primitive.NewObjectID(), Email: "gone@example.com", Role: models.RoleAngel}
	users := staticUsers{admin.ID.Hex(): admin, inactive.ID.Hex(): inactive}
	am := NewAuthMiddleware(jwtService, users)

	tokenFor := func(u *models.User) (string, string) {
		pair, err := jwtService.GenerateTokenPair(u.ID.Hex(), u.Email, u.Role)
		if err != nil {
			t.Fatal(err)
		}
		return pair.AccessToken, pair.RefreshToken
	}
	adminAccess, adminRefresh := tokenFor(admin)
	inactiveAccess, _ := tokenFor(inactive)

	r := gin.New()
	r.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetUserID(c))
	})
	r.GET("/admin", am.RequireAuth(), am.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/angels", am.RequireAuth(), am.RequireRole(models.RoleAngel), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/optional", am.OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetUserID(c))
	})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		body   string
	}{
		{name: "missing token", path: "/me", status: http.StatusUnauthorized},
		{name: "garbage token", path: "/me", token: "nope", status: http.StatusUnauthorized},
		{name: "refresh token rejected", path: "/me", token: adminRefresh, status: http.StatusUnauthorized},
		{name: "inactive user", path: "/me", token: inactiveAccess, status: http.StatusUnauthorized},
		{name: "valid token", path: "/me", token: adminAccess, status: http.StatusOK, body: admin.ID.Hex()},
		{name: "role allowed", path: "/admin", token: adminAccess, status: http.StatusOK},
		{name: "role denied", path: "/angels", token: adminAccess, status: http.StatusForbidden},
		{name: "optional without token", path: "/optional", status: http.StatusOK, body: ""},
		{name: "optional with bad token", path: "/optional", token: "nope", status: http.StatusOK, body: ""},
		{name: "optional with token", path: "/optional", token: adminAccess, status: http.StatusOK, body: admin.ID.Hex()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := perform(r, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusOK && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestRequireDevice(t *testing.T) {
	r := gin.New()
	r.GET("/device", RequireDevice(), func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetDeviceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/device", nil)
	if w := perform(r, req); w.Code != http.StatusBadRequest {
		t.Errorf("missing device status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/device", nil)
	req.Header.Set("X-Device-ID", "  phone-1 ")
	if w := perform(r, req); w.Body.String() != "phone-1" {
		t.Errorf("device = %q, want phone-1", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/device?deviceId=phone-2", nil)
	if w := perform(r, req); w.Body.String() != "phone-2" {
		t.Errorf("device from query = %q, want phone-2", w.Body.String())
	}
}

func TestHelpRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := gin.New()
	r.POST("/help", RequireDevice(), HelpRateLimit(client, 2), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	send := func(deviceID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/help", nil)
		req.Header.Set("X-Device-ID", deviceID)
		return perform(r, req)
	}

	for i := 0; i < 2; i++ {
		if w := send("phone-1"); w.Code != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := send("phone-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if resp := decodeError(t, w); resp.Error.Code != models.ErrCodeRateLimit || resp.Message != "Too many help requests from this device" {
		t.Errorf("rate limit body = %+v", resp)
	}

	if w := send("phone-2"); w.Code != http.StatusAccepted {
		t.Errorf("other device status = %d, want 202", w.Code)
	}
}

func TestRateLimitWithoutRedis(t *testing.T) {
	r := gin.New()
	r.GET("/", APIRateLimit(nil, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if w := perform(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://preventanyl.ca", "https://*.preventanyl.ca"})))
	r.GET("/kits", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		status     int
		allowedHdr string
	}{
		{name: "preflight allowed", method: http.MethodOptions, origin: "https://preventanyl.ca", status: http.StatusNoContent, allowedHdr: "https://preventanyl.ca"},
		{name: "preflight wildcard", method: http.MethodOptions, origin: "https://admin.preventanyl.ca", status: http.StatusNoContent, allowedHdr: "https://admin.preventanyl.ca"},
		{name: "preflight denied", method: http.MethodOptions, origin: "https://evil.example", status: http.StatusForbidden},
		{name: "simple request", method: http.MethodGet, origin: "https://preventanyl.ca", status: http.StatusOK, allowedHdr: "https://preventanyl.ca"},
		{name: "no origin", method: http.MethodGet, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/kits", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := perform(r, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.allowedHdr {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.allowedHdr)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(NewErrorHandler("production", nil).Handle())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/cooldown", func(c *gin.Context) {
		_ = c.Error(&utils.CooldownError{Remaining: 0.1})
	})

	if w := perform(r, httptest.NewRequest(http.MethodGet, "/panic", nil)); w.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", w.Code)
	}
	if w := perform(r, httptest.NewRequest(http.MethodGet, "/cooldown", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("cooldown status = %d, want 429", w.Code)
	}
}

func TestErrorHandlerPanicDetails(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		r := gin.New()
		r.Use(NewErrorHandler(env, nil).Handle())
		r.GET("/panic", func(c *gin.Context) { panic("boom") })

		w := perform(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
		resp := decodeError(t, w)
		if resp.Error.Code != models.ErrCodeInternal || resp.Message != "Internal server error" {
			t.Errorf("%s: body = %+v", env, resp)
		}
		if hasDetails := resp.Error.Details != nil; hasDetails != (env == "development") {
			t.Errorf("%s: details = %v", env, resp.Error.Details)
		}
	}
}
