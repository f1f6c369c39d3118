package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"StudyBoard/internal/codec"
)

// Identity supplies the credentials attached to backend calls. The token is
// opaque to this package.
type Identity interface {
	UserID() string
	Token() string
}

// StaticIdentity is a fixed user id and token.
type StaticIdentity struct {
	ID          string
	BearerToken string
}

func (s StaticIdentity) UserID() string { return s.ID }
func (s StaticIdentity) Token() string  { return s.BearerToken }

// HTTPBackend talks to the whiteboard endpoints of the study-room API.
type HTTPBackend struct {
	base     *url.URL
	client   *http.Client
	identity Identity
}

// NewHTTPBackend creates a backend client rooted at baseURL
// (for example http://host:8080).
func NewHTTPBackend(baseURL string, identity Identity, client *http.Client) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPBackend{base: u, client: client, identity: identity}, nil
}

// Sync posts one batch and returns the version assigned by the backend.
func (b *HTTPBackend) Sync(ctx context.Context, env Envelope) (int64, error) {
	body, err := json.Marshal(SyncRequest{
		SessionID:  env.SessionID,
		Operations: codec.EncodeBatch(env.Operations),
		Version:    env.Version,
	})
	if err != nil {
		return 0, fmt.Errorf("encode sync request: %w", err)
	}

	var resp SyncResponse
	if err := b.do(ctx, http.MethodPost, b.base.JoinPath("peer", "whiteboard", "sync"), body, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// FetchState loads the stored operations and version of a session.
func (b *HTTPBackend) FetchState(ctx context.Context, sessionID string) (State, error) {
	var resp StateResponse
	if err := b.do(ctx, http.MethodGet, b.base.JoinPath("peer", "whiteboard", sessionID), nil, &resp); err != nil {
		return State{}, err
	}
	return State{Operations: codec.DecodeBatch(resp.Operations), Version: resp.Version}, nil
}

func (b *HTTPBackend) do(ctx context.Context, method string, u *url.URL, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.identity != nil {
		if tok := b.identity.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if id := b.identity.UserID(); id != "" {
			req.Header.Set(UserHeader, id)
		}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", u.Path, err)
	}
	return nil
}

// UserHeader carries the caller's user id to the reference server, which has
// no session store of its own.
const UserHeader = "X-User-Id"
