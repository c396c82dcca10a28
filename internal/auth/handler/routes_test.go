package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emanara/passkey-auth/internal/auth/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegisterRoutes verifies that all routes are mounted correctly.
func TestRegisterRoutes(t *testing.T) {
	app, _ := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), nil, nil)

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/register/begin"},
		{http.MethodPost, "/api/v1/register/finish"},
		{http.MethodPost, "/api/v1/login/begin"},
		{http.MethodPost, "/api/v1/login/finish"},
		{http.MethodPost, "/api/v1/refresh"},
		{http.MethodDelete, "/api/v1/session"},
		{http.MethodGet, "/api/v1/health"},
		{http.MethodGet, "/api/v1/me"},
		{http.MethodDelete, "/api/v1/credentials/some-id"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s_%s_exists", tc.method, tc.path), func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)

			// We only care that the route exists. A 404 here would mean it
			// doesn't; handlers themselves answer 400/401 for empty requests.
			assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}
