package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func testEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(AccessLog())
	engine.Use(Recovery())
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	return engine
}

func TestAccessLog_LevelFollowsStatus(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	engine := testEngine()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, log.InfoLevel, entry.Level)
	require.Contains(t, entry.Message, "GET /ok?x=1 200")

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}

func TestRecovery_PanicBecomesPlain500(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	engine := testEngine()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// The panic value stays in the log, not in the response body.
	require.NotContains(t, rec.Body.String(), "kaboom")

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel {
			require.Contains(t, entry.Message, "kaboom")
			logged = true
		}
	}
	require.True(t, logged)
}
