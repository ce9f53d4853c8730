package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPTimeout = 3 * time.Minute

// Config describes how to build a backend client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the assistant backend over plain HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu    sync.Mutex
	token string
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  pickHTTPClient(cfg.HTTPClient),
		logger:  logger,
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Streaming responses can run for minutes; rely on the caller's context
	// for anything tighter.
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// SetToken installs the bearer token used for authenticated endpoints.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := struct {
		Detail string `json:"detail"`
	}{}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("backend error: %s (%s)", resp.Status, detail.Detail)
	}
	return fmt.Errorf("backend error: %s (%s)", resp.Status, bytes.TrimSpace(body))
}

// Credentials is the identity pair persisted between runs.
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Login exchanges a username/password for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Credentials{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Credentials{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Credentials{}, statusError(resp)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Credentials{}, err
	}
	if parsed.Username == "" {
		parsed.Username = username
	}
	c.SetToken(parsed.AccessToken)
	return Credentials{Username: parsed.Username, Token: parsed.AccessToken}, nil
}

// Verify confirms the stored token is still valid. Callers bound it with a
// short timeout and fall back to cached identity when it cannot be reached.
func (c *Client) Verify(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/verify", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// TranscribeParams carries the fixed transcription hints sent with each upload.
type TranscribeParams struct {
	Language  string
	ModelHint string
}

// Transcribe posts an encoded audio blob and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string, params TranscribeParams) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if params.ModelHint != "" {
		if err := writer.WriteField("model", params.ModelHint); err != nil {
			return "", err
		}
	}
	if params.Language != "" {
		if err := writer.WriteField("language", params.Language); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}

	var parsed struct {
		Transcription string `json:"transcription"`
		Text          string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Transcription != "" {
		return parsed.Transcription, nil
	}
	return parsed.Text, nil
}

// SynthesizeRequest mirrors the /synthesize JSON payload.
type SynthesizeRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Format string  `json:"format"`
}

// Synthesize returns the synthesized speech audio for the given text.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

// ConvertToBraille translates text into its braille representation.
func (c *Client) ConvertToBraille(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/convert-to-braille", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}

	var parsed struct {
		Braille string `json:"braille"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Braille, nil
}

// DownloadBRF converts braille text into a downloadable BRF file blob.
func (c *Client) DownloadBRF(ctx context.Context, braille string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"braille_text": braille})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/download-brf", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Conversation is one entry of the server-side session list.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
}

// Conversations fetches the session list for a user, newest first not
// guaranteed by the server; callers sort.
func (c *Client) Conversations(ctx context.Context, user string, limit int) ([]Conversation, error) {
	query := url.Values{"user": {user}, "limit": {strconv.Itoa(limit)}}
	path := "/conversations?" + query.Encode()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	var parsed struct {
		Data []Conversation `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

// StoredMessage is one message of a persisted conversation.
type StoredMessage struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Content   string       `json:"content"`
	Timestamp int64        `json:"timestamp"`
	IsVoice   bool         `json:"isVoice"`
	Files     []StoredFile `json:"files"`
}

// StoredFile is a file reference attached to a persisted message.
type StoredFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
}

// ConversationMessages fetches one conversation's message history.
func (c *Client) ConversationMessages(ctx context.Context, id, user string, limit int) ([]StoredMessage, error) {
	query := url.Values{"user": {user}, "limit": {strconv.Itoa(limit)}}
	path := "/conversations/" + url.PathEscape(id) + "/messages?" + query.Encode()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	var parsed struct {
		Messages []StoredMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Messages, nil
}

// DeleteConversation removes one conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, id, user string) error {
	payload, err := json.Marshal(map[string]string{"user": user})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// UploadedFile is the server-assigned handle for an uploaded attachment.
type UploadedFile struct {
	UploadFileID   string `json:"upload_file_id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	MimeType       string `json:"mime_type"`
	TransferMethod string `json:"transfer_method"`
}

// UploadFile posts one attachment and returns its upload handle.
func (c *Client) UploadFile(ctx context.Context, filename, user string, content io.Reader) (UploadedFile, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadedFile{}, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadedFile{}, err
	}
	if err := writer.WriteField("user", user); err != nil {
		return UploadedFile{}, err
	}
	if err := writer.Close(); err != nil {
		return UploadedFile{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/dify-files-upload", &buf)
	if err != nil {
		return UploadedFile{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return UploadedFile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return UploadedFile{}, statusError(resp)
	}

	var parsed UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return UploadedFile{}, err
	}
	return parsed, nil
}
