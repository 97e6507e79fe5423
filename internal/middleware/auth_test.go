package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtsvc "notestream/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T, jwt *jwtsvc.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(OptionalAuth(jwt))
	router.GET("/whoami", func(c *gin.Context) {
		resp := gin.H{"privileged": Privileged(c)}
		if id := RequesterID(c); id != nil {
			resp["user_id"] = *id
		}
		c.JSON(http.StatusOK, resp)
	})
	return router
}

func TestOptionalAuthNoHeaderIsAnonymous(t *testing.T) {
	jwt := jwtsvc.New("test-secret", time.Hour)
	router := newAuthRouter(t, jwt)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "user_id")
}

func TestOptionalAuthValidToken(t *testing.T) {
	jwt := jwtsvc.New("test-secret", time.Hour)
	router := newAuthRouter(t, jwt)

	token, err := jwt.GenerateToken(42, "client")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
	assert.Contains(t, w.Body.String(), `"privileged":false`)
}

func TestOptionalAuthAdminRole(t *testing.T) {
	jwt := jwtsvc.New("test-secret", time.Hour)
	router := newAuthRouter(t, jwt)

	token, err := jwt.GenerateToken(1, RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"privileged":true`)
}

// A present-but-broken token is an error, not anonymity: the caller must be
// able to tell a typo'd token apart from an anonymous session.
func TestOptionalAuthRejectsBadTokens(t *testing.T) {
	jwt := jwtsvc.New("test-secret", time.Hour)
	router := newAuthRouter(t, jwt)

	otherSecret := jwtsvc.New("other-secret", time.Hour)
	forged, err := otherSecret.GenerateToken(42, "client")
	require.NoError(t, err)

	expired := jwtsvc.New("test-secret", -time.Hour)
	expiredToken, err := expired.GenerateToken(42, "client")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong signature", "Bearer " + forged},
		{"expired", "Bearer " + expiredToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set("Authorization", tc.header)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
		})
	}
}
