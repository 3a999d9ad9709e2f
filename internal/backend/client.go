// Package backend is the HTTP client for the ClipSesh API: bot login,
// admin-config fetch, and multipart clip upload.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials is returned on HTTP 400 from the login endpoint.
	ErrInvalidCredentials = errors.New("backend: invalid credentials")

	// ErrUnavailable is returned on HTTP 502 from the login endpoint.
	ErrUnavailable = errors.New("backend: service unavailable")

	// ErrMalformedResponse is returned when a 200 response is missing
	// expected fields.
	ErrMalformedResponse = errors.New("backend: malformed response")

	// ErrUnauthorized is returned on HTTP 401 (expired or missing token).
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// StatusError carries a non-2xx upload status and the optional
// server-supplied error text.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend: server error (%d)", e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		upload: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges bot credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusBadRequest:
		text := readErrorBody(resp.Body)
		return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, text)
	case http.StatusBadGateway:
		return "", ErrUnavailable
	default:
		return "", &StatusError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: no token field", ErrMalformedResponse)
	}

	return out.Token, nil
}

// ChannelID tolerates the backend sending channel IDs as JSON strings or
// numbers.
type ChannelID string

func (c *ChannelID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = ChannelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ChannelID(n.String())
	return nil
}

type BlacklistedSubmitter struct {
	UserID string `json:"userId"`
}

type AdminConfig struct {
	ClipChannelIDs        []ChannelID            `json:"clipChannelIds"`
	BlacklistedSubmitters []BlacklistedSubmitter `json:"blacklistedSubmitters"`
	BlacklistedStreamers  []string               `json:"blacklistedStreamers"`
}

// AdminConfigFetch retrieves the admin section of the backend config.
// Returns ErrUnauthorized on 401 so callers can refresh the token.
func (c *Client) AdminConfigFetch(ctx context.Context, token string) (*AdminConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/config/admin", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var out struct {
		Admin *AdminConfig `json:"admin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Admin == nil {
		return nil, fmt.Errorf("%w: no admin section", ErrMalformedResponse)
	}

	return out.Admin, nil
}

// UploadRequest is the multipart payload for /api/clips.
type UploadRequest struct {
	FilePath    string
	Streamer    string
	Title       string
	Link        string
	Submitter   string
	SubmitterID string
}

// UploadClip POSTs the clip file and metadata with bearer auth.
// Returns nil on 200, ErrUnauthorized on 401, *StatusError on other non-2xx,
// and the transport error otherwise.
func (c *Client) UploadClip(ctx context.Context, token string, ur UploadRequest) error {
	file, err := os.Open(ur.FilePath)
	if err != nil {
		return err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("clip", filepath.Base(ur.FilePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}

		fields := map[string]string{
			"streamer":           ur.Streamer,
			"title":              ur.Title,
			"link":               ur.Link,
			"submitter":          ur.Submitter,
			"discordSubmitterId": ur.SubmitterID,
		}
		for name, value := range fields {
			if err := mw.WriteField(name, value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}

		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/clips", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.upload.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return &StatusError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}
}

// readErrorBody extracts the server-supplied error text, preferring the
// JSON {"error": ...} shape.
func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 16*1024))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
