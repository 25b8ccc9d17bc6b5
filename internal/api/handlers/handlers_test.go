package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func contextWithHeaders(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestExplicitAPIKey(t *testing.T) {
	cases := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"none", nil, ""},
		{"x-api-key", map[string]string{"X-Api-Key": "sk-ant-key"}, "sk-ant-key"},
		{"x-api-key wins over bearer", map[string]string{
			"X-Api-Key":     "sk-ant-header",
			"Authorization": "Bearer sk-ant-bearer",
		}, "sk-ant-header"},
		{"anthropic-shaped bearer", map[string]string{"Authorization": "Bearer sk-ant-api03-abc"}, "sk-ant-api03-abc"},
		{"plain bearer is not an upstream key", map[string]string{"Authorization": "Bearer my-proxy-key"}, ""},
		{"malformed authorization", map[string]string{"Authorization": "sk-ant-naked"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ExplicitAPIKey(contextWithHeaders(tc.headers)))
		})
	}
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	WriteError(c, http.StatusBadRequest, "invalid_request_error", "bad input")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":{"message":"bad input","type":"invalid_request_error"}}`, rec.Body.String())
}
