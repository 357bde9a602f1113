// Package session manages the provider API session: authentication,
// authorized requests, VPN credentials and tier, and the accounting
// checks performed before a connection is established.
//
// A successful login captures an accounting baseline (tier, OpenVPN
// password, allowed concurrent sessions) and persists the session dump
// to the keyring, so both the session and its baseline survive process
// restarts.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/multierr"

	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/keyring"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keyringKey is where the session dump is stored.
const keyringKey = "session"

// apiCodeIncorrectCredentials is the provider's response code for a
// failed login.
const apiCodeIncorrectCredentials = 8002

// Errors returned by session operations.
var (
	// ErrIncorrectCredentials indicates a rejected login.
	ErrIncorrectCredentials = errors.New("incorrect username or password")
	// ErrDelinquentAccount indicates the account has unpaid invoices.
	ErrDelinquentAccount = errors.New("account is delinquent")
	// ErrPlanDowngraded indicates the plan tier dropped below the one
	// captured at login.
	ErrPlanDowngraded = errors.New("account plan was downgraded")
	// ErrVPNCredentialsChanged indicates the OpenVPN password no longer
	// matches the one captured at login.
	ErrVPNCredentialsChanged = errors.New("vpn credentials have changed")
	// ErrTooManySessions indicates the account has reached its allowed
	// number of concurrent VPN sessions.
	ErrTooManySessions = errors.New("too many concurrent vpn sessions")
)

// APIError is a non-2xx response from the provider API.
type APIError struct {
	// Code is the provider's response code.
	Code int
	// Message is the provider's error description.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// VPNInfo is the account's VPN data as returned by GET /vpn.
type VPNInfo struct {
	// Name is the OpenVPN username.
	Name string `json:"Name"`
	// Password is the OpenVPN password.
	Password string `json:"Password"`
	// MaxTier is the highest server tier the account may use.
	MaxTier int `json:"MaxTier"`
	// MaxConnect is the allowed number of concurrent sessions.
	MaxConnect int `json:"MaxConnect"`
}

// Session is an authenticated provider API session. The exported
// fields form the dump persisted to the keyring.
type Session struct {
	BaseURL     string  `json:"base_url"`
	AccessToken string  `json:"access_token"`
	UID         string  `json:"uid"`
	VPN         VPNInfo `json:"vpn"`
	Delinquent  int     `json:"delinquent"`

	// Accounting baseline captured at login.
	BaselineTier       int    `json:"baseline_tier"`
	BaselinePassword   string `json:"baseline_password"`
	BaselineMaxConnect int    `json:"baseline_max_connect"`

	client *http.Client
}

type authRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type authResponse struct {
	Code        int    `json:"Code"`
	AccessToken string `json:"AccessToken"`
	UID         string `json:"UID"`
}

type vpnResponse struct {
	Code       int     `json:"Code"`
	VPN        VPNInfo `json:"VPN"`
	Delinquent int     `json:"Delinquent"`
}

type sessionsResponse struct {
	Code     int `json:"Code"`
	Sessions []struct {
		SessionID string `json:"SessionID"`
	} `json:"Sessions"`
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Login authenticates against the provider API, fetches the account's
// VPN info, captures the accounting baseline, and persists the session
// to the keyring.
func Login(ctx context.Context, baseURL, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: both username and password must be provided", common.ErrInvalidArgument)
	}

	s := &Session{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}

	body, err := s.do(ctx, http.MethodPost, "/auth", authRequest{Username: username, Password: password})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == apiCodeIncorrectCredentials {
			return nil, fmt.Errorf("%w: %v", ErrIncorrectCredentials, err)
		}
		return nil, common.WrapError(err, "authentication failed")
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, common.WrapError(err, "failed to parse auth response")
	}
	s.AccessToken = auth.AccessToken
	s.UID = auth.UID

	if err := s.RefreshVPNInfo(ctx); err != nil {
		return nil, err
	}
	s.BaselineTier = s.VPN.MaxTier
	s.BaselinePassword = s.VPN.Password
	s.BaselineMaxConnect = s.VPN.MaxConnect

	if err := s.save(); err != nil {
		return nil, common.WrapError(err, "failed to persist session")
	}
	common.LogInfo("Logged in, plan tier %d", s.VPN.MaxTier)
	return s, nil
}

// Load restores the persisted session from the keyring.
func Load() (*Session, error) {
	dump, err := keyring.Get(keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, common.ErrNotAuthenticated
		}
		return nil, common.WrapError(err, "failed to read stored session")
	}

	var s Session
	if err := json.Unmarshal([]byte(dump), &s); err != nil {
		return nil, common.WrapError(err, "failed to parse stored session")
	}
	s.client = newHTTPClient()
	return &s, nil
}

// Logout revokes the session with the API (best effort) and deletes
// the stored dump. Independent failures are accumulated.
func (s *Session) Logout(ctx context.Context) error {
	var errs error
	if _, err := s.do(ctx, http.MethodDelete, "/auth", nil); err != nil {
		errs = multierr.Append(errs, common.WrapError(err, "failed to revoke session"))
	}
	if err := keyring.Delete(keyringKey); err != nil {
		errs = multierr.Append(errs, common.WrapError(err, "failed to delete stored session"))
	}
	return errs
}

// save persists the session dump to the keyring.
func (s *Session) save() error {
	dump, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return keyring.Store(keyringKey, string(dump))
}

// APIRequest performs an authorized GET against the provider API and
// returns the raw response body.
func (s *Session) APIRequest(ctx context.Context, endpoint string) ([]byte, error) {
	return s.do(ctx, http.MethodGet, endpoint, nil)
}

// do issues one API request. A non-2xx response is returned as an
// APIError carrying the provider's code and message.
func (s *Session) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}
	if s.UID != "" {
		req.Header.Set("x-pm-uid", s.UID)
	}

	if s.client == nil {
		s.client = newHTTPClient()
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Code: resp.StatusCode}
		var e struct {
			Code  int    `json:"Code"`
			Error string `json:"Error"`
		}
		if err := json.Unmarshal(body, &e); err == nil && e.Code != 0 {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		} else {
			apiErr.Message = resp.Status
		}
		return nil, apiErr
	}
	return body, nil
}

// RefreshVPNInfo refetches GET /vpn and updates the account's VPN data.
func (s *Session) RefreshVPNInfo(ctx context.Context) error {
	body, err := s.APIRequest(ctx, "/vpn")
	if err != nil {
		return common.WrapError(err, "failed to fetch vpn info")
	}

	var info vpnResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return common.WrapError(err, "failed to parse vpn info")
	}
	s.VPN = info.VPN
	s.Delinquent = info.Delinquent
	return nil
}

// Tier returns the highest server tier the account may use.
func (s *Session) Tier() int {
	return s.VPN.MaxTier
}

// VPNCredentials returns the OpenVPN username and password.
func (s *Session) VPNCredentials() (string, string) {
	return s.VPN.Name, s.VPN.Password
}

// sessionCount returns the number of currently active VPN sessions on
// the account.
func (s *Session) sessionCount(ctx context.Context) (int, error) {
	body, err := s.APIRequest(ctx, "/vpn/sessions")
	if err != nil {
		return 0, common.WrapError(err, "failed to fetch session list")
	}

	var sessions sessionsResponse
	if err := json.Unmarshal(body, &sessions); err != nil {
		return 0, common.WrapError(err, "failed to parse session list")
	}
	return len(sessions.Sessions), nil
}

// CheckAccounting refreshes the account's VPN data and verifies it
// against the baseline captured at login. The first violated check is
// returned.
func (s *Session) CheckAccounting(ctx context.Context) error {
	if err := s.RefreshVPNInfo(ctx); err != nil {
		return err
	}

	if s.Delinquent > 0 {
		return ErrDelinquentAccount
	}
	if s.VPN.MaxTier < s.BaselineTier {
		return ErrPlanDowngraded
	}
	if s.VPN.Password != s.BaselinePassword {
		return ErrVPNCredentialsChanged
	}

	count, err := s.sessionCount(ctx)
	if err != nil {
		return err
	}
	if count >= s.BaselineMaxConnect {
		return ErrTooManySessions
	}
	return nil
}
