package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "i5e.identity"}

func TestParseAcceptsIssuedToken(t *testing.T) {
	token, err := Issue(testConfig, "user-1", "0xABCDEF0000000000000000000000000000000001", []string{ScopeRewardsRead, ScopeRewardsClaim}, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "0xabcdef0000000000000000000000000000000001", claims.Wallet)
	require.True(t, claims.HasScope(ScopeRewardsClaim))
	require.False(t, claims.HasScope(ScopeActivitiesWrite))
	require.True(t, claims.AllowsWallet("0xABCDEF0000000000000000000000000000000001"))
	require.False(t, claims.AllowsWallet("0x0000000000000000000000000000000000000002"))
}

func TestParseRejects(t *testing.T) {
	expired, err := Issue(testConfig, "user-1", "", nil, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "elsewhere"}, "user-1", "", nil, time.Minute)
	require.NoError(t, err)
	wrongSecret, err := Issue(Config{Secret: "other", Issuer: testConfig.Issuer}, "user-1", "", nil, time.Minute)
	require.NoError(t, err)
	noSubject, err := Issue(testConfig, "", "", nil, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "iss": testConfig.Issuer}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong secret": wrongSecret,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestNormalizeScopesAcceptsSpaceDelimitedString(t *testing.T) {
	scopes := normalizeScopes("rewards:read  activities:write")
	require.Len(t, scopes, 2)
	require.Contains(t, scopes, ScopeActivitiesWrite)
}

func TestMiddleware(t *testing.T) {
	mw := NewMiddleware(testConfig)
	var seen *Claims
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/claims/preview", RequireScope(ScopeRewardsRead, func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	handler := mw.Wrap(mux)

	readToken, err := Issue(testConfig, "user-1", "", []string{ScopeRewardsRead}, time.Minute)
	require.NoError(t, err)
	claimOnly, err := Issue(testConfig, "user-1", "", []string{ScopeRewardsClaim}, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is open", "/healthz", "", http.StatusNoContent},
		{"missing token", "/v1/claims/preview", "", http.StatusUnauthorized},
		{"bad scheme", "/v1/claims/preview", "Basic abc", http.StatusUnauthorized},
		{"missing scope", "/v1/claims/preview", "Bearer " + claimOnly, http.StatusForbidden},
		{"ok", "/v1/claims/preview", "bearer " + readToken, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)
}
