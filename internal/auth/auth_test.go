package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatyamPandey-07/lms--3/internal/models"
)

const secret = "test-secret"

func TestIssueAndParse(t *testing.T) {
	actor := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	tok, err := Issue(secret, actor, time.Hour)
	require.NoError(t, err)

	got, err := Parse("Bearer "+tok, secret)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	got, err = Parse(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestParse_Rejects(t *testing.T) {
	actor := models.Actor{ID: uuid.New(), Role: models.RolePatron}

	_, err := Parse("", secret)
	assert.ErrorIs(t, err, ErrMissingToken)

	tok, err := Issue("other-secret", actor, time.Hour)
	require.NoError(t, err)
	_, err = Parse(tok, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue(secret, actor, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "LIBRARIAN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := badRole.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = Parse(s, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", Middleware(secret), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, actor.ID.String())
	})

	admin := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	patron := models.Actor{ID: uuid.New(), Role: models.RolePatron}
	adminTok, err := Issue(secret, admin, time.Hour)
	require.NoError(t, err)
	patronTok, err := Issue(secret, patron, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"patron", "Bearer " + patronTok, http.StatusForbidden},
		{"admin", "Bearer " + adminTok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
