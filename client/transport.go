package client

import (
	"net/http"
)

// refreshTransport adds the Bearer header and retries once after a
// refresh when the server answers 401.
type refreshTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken(req.Context())
	if err != nil {
		return nil, err
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || token == "" || req.GetBody == nil && req.Body != nil {
		return resp, nil
	}

	t.client.mu.Lock()
	cred, _ := t.client.store.GetCredential(t.client.serverURL)
	var refreshErr error
	if cred != nil && cred.HasRefreshToken() {
		refreshErr = t.client.refreshLocked(req.Context(), cred)
	}
	t.client.mu.Unlock()
	if cred == nil || !cred.HasRefreshToken() || refreshErr != nil {
		return resp, nil
	}

	newToken, err := t.client.GetToken(req.Context())
	if err != nil || newToken == "" {
		return resp, nil
	}
	resp.Body.Close()
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	retry.Header.Set("Authorization", "Bearer "+newToken)
	return t.base.RoundTrip(retry)
}
