package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/keyring"
)

// apiStub is a configurable fake of the provider API.
type apiStub struct {
	authStatus int
	authBody   string
	vpn        VPNInfo
	delinquent int
	sessions   int

	lastAuthz string
	lastUID   string
}

func (a *apiStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.Write([]byte(`{"Code":1000}`))
			return
		}
		if a.authStatus != 0 && a.authStatus != http.StatusOK {
			w.WriteHeader(a.authStatus)
			w.Write([]byte(a.authBody))
			return
		}
		w.Write([]byte(`{"Code":1000,"AccessToken":"token-123","UID":"uid-456"}`))
	})
	mux.HandleFunc("/vpn", func(w http.ResponseWriter, r *http.Request) {
		a.lastAuthz = r.Header.Get("Authorization")
		a.lastUID = r.Header.Get("x-pm-uid")
		resp := vpnResponse{Code: 1000, VPN: a.vpn, Delinquent: a.delinquent}
		body, _ := json.Marshal(resp)
		w.Write(body)
	})
	mux.HandleFunc("/vpn/sessions", func(w http.ResponseWriter, r *http.Request) {
		resp := sessionsResponse{Code: 1000}
		for i := 0; i < a.sessions; i++ {
			resp.Sessions = append(resp.Sessions, struct {
				SessionID string `json:"SessionID"`
			}{SessionID: "s"})
		}
		body, _ := json.Marshal(resp)
		w.Write(body)
	})
	return mux
}

func newStubServer(t *testing.T, stub *apiStub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return srv
}

func testLogin(t *testing.T, stub *apiStub) *Session {
	t.Helper()
	keyring.MockInit()
	srv := newStubServer(t, stub)

	sess, err := Login(context.Background(), srv.URL, "user", "pass")
	require.NoError(t, err)
	return sess
}

func TestLogin(t *testing.T) {
	stub := &apiStub{vpn: VPNInfo{Name: "ovpn-user", Password: "ovpn-pass", MaxTier: 2, MaxConnect: 2}}
	sess := testLogin(t, stub)

	assert.Equal(t, "token-123", sess.AccessToken)
	assert.Equal(t, "uid-456", sess.UID)
	assert.Equal(t, 2, sess.Tier())

	name, password := sess.VPNCredentials()
	assert.Equal(t, "ovpn-user", name)
	assert.Equal(t, "ovpn-pass", password)

	// Baseline captured from the login-time values.
	assert.Equal(t, 2, sess.BaselineTier)
	assert.Equal(t, "ovpn-pass", sess.BaselinePassword)

	// The dump is persisted and restorable.
	restored, err := Load()
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, restored.AccessToken)
	assert.Equal(t, sess.BaselineTier, restored.BaselineTier)
}

func TestLogin_IncorrectCredentials(t *testing.T) {
	keyring.MockInit()
	stub := &apiStub{
		authStatus: http.StatusUnauthorized,
		authBody:   `{"Code":8002,"Error":"Incorrect login credentials"}`,
	}
	srv := newStubServer(t, stub)

	_, err := Login(context.Background(), srv.URL, "user", "wrong")
	assert.ErrorIs(t, err, ErrIncorrectCredentials)
}

func TestLogin_BlankInput(t *testing.T) {
	_, err := Login(context.Background(), "http://unused", "  ", "pass")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = Login(context.Background(), "http://unused", "user", "")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestLoad_NotLoggedIn(t *testing.T) {
	keyring.MockInit()

	_, err := Load()
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestAPIRequest_SendsAuthHeaders(t *testing.T) {
	stub := &apiStub{vpn: VPNInfo{MaxTier: 1, MaxConnect: 2}}
	sess := testLogin(t, stub)

	_, err := sess.APIRequest(context.Background(), "/vpn")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", stub.lastAuthz)
	assert.Equal(t, "uid-456", stub.lastUID)
}

func TestAPIRequest_APIError(t *testing.T) {
	keyring.MockInit()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"Code":2001,"Error":"Invalid input"}`))
	}))
	t.Cleanup(srv.Close)

	sess := &Session{BaseURL: srv.URL}
	_, err := sess.APIRequest(context.Background(), "/vpn")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 2001, apiErr.Code)
	assert.Equal(t, "Invalid input", apiErr.Message)
}

func TestLogout(t *testing.T) {
	stub := &apiStub{vpn: VPNInfo{MaxTier: 1, MaxConnect: 2}}
	sess := testLogin(t, stub)

	require.NoError(t, sess.Logout(context.Background()))

	_, err := Load()
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestCheckAccounting(t *testing.T) {
	base := VPNInfo{Name: "ovpn-user", Password: "vpn_password", MaxTier: 3, MaxConnect: 2}

	tests := []struct {
		name    string
		mutate  func(stub *apiStub)
		wantErr error
	}{
		{
			name:    "unchanged account passes",
			mutate:  func(stub *apiStub) {},
			wantErr: nil,
		},
		{
			name:    "delinquent account",
			mutate:  func(stub *apiStub) { stub.delinquent = 2 },
			wantErr: ErrDelinquentAccount,
		},
		{
			name: "plan downgrade",
			mutate: func(stub *apiStub) {
				stub.vpn.MaxTier = 0
			},
			wantErr: ErrPlanDowngraded,
		},
		{
			name: "vpn password change",
			mutate: func(stub *apiStub) {
				stub.vpn.Password = "changed_password"
			},
			wantErr: ErrVPNCredentialsChanged,
		},
		{
			name:    "too many concurrent sessions",
			mutate:  func(stub *apiStub) { stub.sessions = 2 },
			wantErr: ErrTooManySessions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &apiStub{vpn: base}
			sess := testLogin(t, stub)

			tt.mutate(stub)

			err := sess.CheckAccounting(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
