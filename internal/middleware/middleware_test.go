package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/medibridge/telehealth/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://clinic.example"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://clinic.example")
	w := serve(r, req)
	assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	w = serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		allowed string
		origin  string
		want    bool
	}{
		{"*", "https://any.example", true},
		{"", "https://any.example", true},
		{"https://clinic.example", "https://clinic.example", true},
		{"https://clinic.example", "https://evil.example", false},
		{"https://clinic.example", "", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws/telemedicine", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, OriginChecker(tt.allowed)(req), "%q from %q", tt.allowed, tt.origin)
	}
}

func TestJWTAndRole(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.POST("/rooms", JWT(svc), RequireRole(auth.RoleDoctor, auth.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})

	doctor, err := svc.Generate("D1", auth.RoleDoctor)
	require.NoError(t, err)
	patient, err := svc.Generate("P1", auth.RolePatient)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"patient", "Bearer " + patient, http.StatusForbidden},
		{"doctor", "Bearer " + doctor, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rooms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "D1", w.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutJWT(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(auth.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, "/fail", entries[1].ContextMap()["path"])
}
