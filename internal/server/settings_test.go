package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doPost(srv *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestRotateHandoffHash(t *testing.T) {
	srv := newTestServer(t)

	rec := doPost(srv, "https://"+nativeHost+"/api/v1/handoff-hash/rotate")
	require.Equal(t, http.StatusOK, rec.Code)
	first := rec.Body.String()

	rec = doPost(srv, "https://"+nativeHost+"/api/v1/handoff-hash/rotate")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, first, "handoff_hash")
	assert.NotEqual(t, first, rec.Body.String())
}

func TestRotateInvalidatesInFlightHandoffs(t *testing.T) {
	srv := newTestServer(t)
	addMapping(t, srv, mappedHost, true)

	// Walk the first two hops to get a redemption URL under the old hash.
	start := "https://" + mappedHost + "/handoff/start?" +
		url.Values{handoffdomain.ParamReturn: {"https://" + mappedHost + "/account"}}.Encode()
	rec := do(srv, start)
	rec = do(srv, rec.Header().Get("Location"), &http.Cookie{Name: "_sid", Value: "user-7"})
	redeemURL := rec.Header().Get("Location")
	require.NotEmpty(t, redeemURL)

	rec = doPost(srv, "https://"+nativeHost+"/api/v1/handoff-hash/rotate")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, redeemURL)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, sessionCookie(t, rec))
}
