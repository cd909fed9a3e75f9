package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newRouter(t *testing.T) (*gin.Engine, *HTTPHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHTTPHandler(NewMemoryService(time.Hour))
	r := gin.New()
	h.RegisterRoutes(r)
	r.GET("/whoami", func(c *gin.Context) {
		player, err := h.Identify(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"player_id": player})
	})
	return r, h
}

func send(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_RegisterIdentifyLogout(t *testing.T) {
	r, _ := newRouter(t)
	creds := credentialsRequest{Username: "carol_7", Password: "hunter22"}

	rec := send(t, r, http.MethodPost, "/auth/register", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status %d: %s", rec.Code, rec.Body.String())
	}
	var reg authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatal(err)
	}
	if reg.PlayerID == 0 || reg.SessionToken == "" {
		t.Fatalf("unexpected register response %+v", reg)
	}

	if rec := send(t, r, http.MethodPost, "/auth/register", "", creds); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status %d", rec.Code)
	}
	if rec := send(t, r, http.MethodPost, "/auth/login", "", credentialsRequest{Username: "carol_7", Password: "nope-nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", rec.Code)
	}

	rec = send(t, r, http.MethodGet, "/auth/me", reg.SessionToken, nil)
	var me meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || me.PlayerID != reg.PlayerID || me.Username != "carol_7" {
		t.Fatalf("unexpected me response %d %s", rec.Code, rec.Body.String())
	}

	if rec := send(t, r, http.MethodGet, "/whoami", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous whoami status %d", rec.Code)
	}
	if rec := send(t, r, http.MethodGet, "/whoami", reg.SessionToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("whoami status %d", rec.Code)
	}

	if rec := send(t, r, http.MethodPost, "/auth/logout", reg.SessionToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", rec.Code)
	}
	if rec := send(t, r, http.MethodGet, "/whoami", reg.SessionToken, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("whoami after logout status %d", rec.Code)
	}
}
