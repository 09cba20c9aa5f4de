// Package auth drives the authentication pass against the backend. The
// protocol internals stay behind the HttpFetcher port; this component owns
// request construction, response classification and asynchronous delivery.
package auth

import (
	"encoding/json"
	"fmt"
	"sync"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/status"
	"ppn/infrastructure/looper"
)

type request struct {
	ServiceType string `json:"service_type"`
	BearerToken string `json:"bearer_token"`
	IsRekey     bool   `json:"is_rekey"`
}

type response struct {
	JWTToken          string   `json:"jwt_token"`
	SessionManagerIPs []string `json:"session_manager_ips"`
}

type Authenticator struct {
	authURL     string
	serviceType string
	fetcher     ppn.HttpFetcher
	tokens      ppn.TokenProvider
	queue       *looper.Looper
	log         logging.Logger

	mu           sync.Mutex
	notification ppn.AuthNotification
	result       *ppn.AuthResult
}

func NewAuthenticator(authURL, serviceType string, fetcher ppn.HttpFetcher,
	tokens ppn.TokenProvider, queue *looper.Looper, log logging.Logger) *Authenticator {
	return &Authenticator{
		authURL:     authURL,
		serviceType: serviceType,
		fetcher:     fetcher,
		tokens:      tokens,
		queue:       queue,
		log:         log,
	}
}

func (a *Authenticator) RegisterNotificationHandler(notification ppn.AuthNotification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notification = notification
}

// Start begins an authentication pass. The blocking exchange runs off the
// caller's goroutine; the outcome is posted onto the session queue.
func (a *Authenticator) Start(isRekey bool) {
	go a.run(isRekey)
}

func (a *Authenticator) AuthResult() *ppn.AuthResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

func (a *Authenticator) run(isRekey bool) {
	result, err := a.authenticate(isRekey)
	if err != nil {
		a.log.Printf("authentication failed: %v", err)
		a.queue.Post(func() { a.handler().AuthFailure(err) })
		return
	}

	a.mu.Lock()
	a.result = result
	a.mu.Unlock()
	a.queue.Post(func() { a.handler().AuthSuccessful(isRekey) })
}

func (a *Authenticator) authenticate(isRekey bool) (*ppn.AuthResult, error) {
	token, err := a.tokens.OAuthToken()
	if err != nil {
		return nil, status.PermissionDenied(fmt.Sprintf("oauth token: %v", err))
	}

	body, err := json.Marshal(request{
		ServiceType: a.serviceType,
		BearerToken: token,
		IsRekey:     isRekey,
	})
	if err != nil {
		return nil, status.Internal(fmt.Sprintf("encode auth request: %v", err))
	}

	resp, err := a.fetcher.PostJSON(a.authURL, body)
	if err != nil {
		return nil, status.Unavailable(err.Error())
	}
	if statusErr := status.FromHTTPCode(resp.Code, resp.Message); statusErr != nil {
		return nil, statusErr
	}

	var decoded response
	if err := json.Unmarshal(resp.JSONBody, &decoded); err != nil {
		return nil, status.Internal(fmt.Sprintf("decode auth response: %v", err))
	}
	if decoded.JWTToken == "" {
		return nil, status.Internal("auth response carries no token")
	}
	return &ppn.AuthResult{
		JWTToken:          decoded.JWTToken,
		SessionManagerIPs: decoded.SessionManagerIPs,
	}, nil
}

func (a *Authenticator) handler() ppn.AuthNotification {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.notification == nil {
		panic("authenticator used without a notification handler")
	}
	return a.notification
}
