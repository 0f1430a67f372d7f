package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTP talks to the session endpoints of a partypuzzle server.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP returns a client for the server at base, for example
// "http://localhost:8080".
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{base: strings.TrimRight(base, "/"), client: client}
}

func (h *HTTP) Create(ctx context.Context, s Session) (Session, error) {
	var out Session
	err := h.do(ctx, http.MethodPost, "/puzzle/session", s, &out)
	return out, err
}

func (h *HTTP) Get(ctx context.Context, id string) (Session, error) {
	var out Session
	err := h.do(ctx, http.MethodGet, "/puzzle/session/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (h *HTTP) Save(ctx context.Context, id string, snap Snapshot) error {
	return h.do(ctx, http.MethodPost, "/puzzle/session/"+url.PathEscape(id)+"/save", snap, nil)
}

func (h *HTTP) Load(ctx context.Context, id string) (Snapshot, error) {
	s, err := h.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot, nil
}

func (h *HTTP) History(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	err := h.do(ctx, http.MethodGet, "/puzzle/history/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	return nil
}
