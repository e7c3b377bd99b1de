package client

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
	"strconv"
	"strings"
	"time"
)

// API talks to a sync server over HTTP.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI builds a client for the given server. token may be empty for a
// server running without accounts.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetToken replaces the bearer token used on subsequent calls.
func (a *API) SetToken(token string) {
	a.token = token
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func (a *API) do(req *http.Request) ([]byte, error) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (a *API) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := a.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Health checks the server is reachable.
func (a *API) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	_, err = a.do(req)
	return err
}

// Pair exchanges a pairing code for a client id.
func (a *API) Pair(ctx context.Context, code string) (string, error) {
	var out struct {
		ClientID string `json:"clientId"`
	}
	err := a.postJSON(ctx, "/api/pairing/verify", map[string]string{"code": code}, &out)
	if err != nil {
		return "", err
	}
	return out.ClientID, nil
}

// Login authenticates and returns a bearer token. An unknown account comes
// back as a 404, which callers can detect with IsNotFound and fall back to
// Register.
func (a *API) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := a.postJSON(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Register creates an account and returns a bearer token.
func (a *API) Register(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := a.postJSON(ctx, "/auth/register", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Upload streams one local file to the server as a multipart request. The
// request body is piped so large files never sit in memory whole.
func (a *API) Upload(ctx context.Context, folderID, relPath, absPath string, modifiedMs int64) error {
	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("relPath", relPath); err != nil {
				return err
			}
			if err := mw.WriteField("folderId", folderID); err != nil {
				return err
			}
			if err := mw.WriteField("lastModified", strconv.FormatInt(modifiedMs, 10)); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", relPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/files/upload", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = a.do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", relPath, err)
	}
	return nil
}
