package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// HTTPConfig configures an HTTPAdapter.
type HTTPConfig struct {
	// BaseURL is the API root, e.g. https://sync.example.org/api.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	Timeout time.Duration

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client

	Logger *slog.Logger
}

// HTTPAdapter speaks JSON over HTTP.
//
// Endpoints, relative to BaseURL:
//
//	POST /v1/outbox/{kind}       upload one outbox item (Idempotency-Key: item id)
//	GET  /v1/catalog/manifest    ?subject=...
//	GET  /v1/catalog/entries     ?id=...
//	GET  /v1/curriculum          ?subject=&class_level=&topic=
//	GET  /v1/assets/{id}         raw bytes
type HTTPAdapter struct {
	base   string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPAdapter creates an adapter. BaseURL must be absolute.
func NewHTTPAdapter(cfg HTTPConfig) (*HTTPAdapter, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.Token,
		client: client,
		logger: logger,
	}, nil
}

// uploadBody is the wire form of an outbox item.
type uploadBody struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	PayloadRef  string          `json:"payload_ref"`
	StudentID   string          `json:"student_id"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	Attempt     int             `json:"attempt"`
}

// errorBody is the error document the backend returns on 4xx/5xx.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// codePayloadMismatch marks a 409 where the id exists with a different payload.
const codePayloadMismatch = "payload_mismatch"

// UploadProgress posts an outbox item.
//
// 2xx and 409 (already applied) acknowledge. A 409 whose body reports a
// payload mismatch, and 400/404/410/422, are permanent. 401, 403, 408, 429,
// 5xx and transport errors are transient.
func (a *HTTPAdapter) UploadProgress(ctx context.Context, item model.OutboxItem) error {
	const op = "remote.UploadProgress"
	body, err := json.Marshal(uploadBody{
		ID:          item.ID,
		Kind:        string(item.Kind),
		PayloadRef:  item.PayloadRef,
		StudentID:   item.StudentID,
		Payload:     item.Payload,
		PayloadHash: item.PayloadHash,
		Attempt:     item.Attempts,
	})
	if err != nil {
		return model.NewPermanentError(op, "encode item: "+err.Error())
	}

	path := "/v1/outbox/" + url.PathEscape(string(item.Kind))
	req, err := a.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return model.NewPermanentError(op, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusConflict:
		eb := readErrorBody(resp.Body)
		if eb.Code == codePayloadMismatch {
			return model.NewPermanentError(op, describe(resp.StatusCode, eb))
		}
		a.logger.Debug("upload already applied",
			"event", "upload_duplicate",
			"item_id", item.ID,
		)
		return nil
	default:
		return statusError(op, resp)
	}
}

// FetchCatalogManifest returns the backend's entry versions for subjects.
func (a *HTTPAdapter) FetchCatalogManifest(ctx context.Context, subjects []string) ([]ManifestEntry, error) {
	q := url.Values{}
	for _, s := range subjects {
		q.Add("subject", s)
	}
	var out []ManifestEntry
	if err := a.getJSON(ctx, "remote.FetchCatalogManifest", "/v1/catalog/manifest", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ManifestEntry{}
	}
	return out, nil
}

// FetchCatalogEntries returns full entries for ids.
func (a *HTTPAdapter) FetchCatalogEntries(ctx context.Context, ids []string) ([]model.CatalogEntry, error) {
	if len(ids) == 0 {
		return []model.CatalogEntry{}, nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	var out []model.CatalogEntry
	if err := a.getJSON(ctx, "remote.FetchCatalogEntries", "/v1/catalog/entries", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.CatalogEntry{}
	}
	return out, nil
}

// curriculumBody is the wire form of a curriculum record. Content is a tagged
// envelope decoded with model.DecodeContent.
type curriculumBody struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	ClassLevel int             `json:"class_level"`
	Topic      string          `json:"topic"`
	Language   string          `json:"language"`
	Version    int64           `json:"version"`
	Content    json.RawMessage `json:"content"`
}

// FetchCurriculum returns content for a subject and class. An empty topic
// lets the backend choose.
func (a *HTTPAdapter) FetchCurriculum(ctx context.Context, subject string, classLevel int, topic string) (model.CurriculumRecord, error) {
	const op = "remote.FetchCurriculum"
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("class_level", strconv.Itoa(classLevel))
	if topic != "" {
		q.Set("topic", topic)
	}
	var body curriculumBody
	if err := a.getJSON(ctx, op, "/v1/curriculum", q, &body); err != nil {
		return model.CurriculumRecord{}, err
	}
	content, err := model.DecodeContent(body.Content)
	if err != nil {
		return model.CurriculumRecord{}, model.NewPermanentError(op, err.Error())
	}
	return model.CurriculumRecord{
		ID:         body.ID,
		Subject:    body.Subject,
		ClassLevel: body.ClassLevel,
		Topic:      body.Topic,
		Language:   body.Language,
		Version:    body.Version,
		Content:    content,
	}, nil
}

// FetchAsset downloads the bytes of one asset.
func (a *HTTPAdapter) FetchAsset(ctx context.Context, assetID string) ([]byte, error) {
	const op = "remote.FetchAsset"
	req, err := a.newRequest(ctx, http.MethodGet, "/v1/assets/"+url.PathEscape(assetID), nil, nil)
	if err != nil {
		return nil, model.NewPermanentError(op, err.Error())
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	return data, nil
}

func (a *HTTPAdapter) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	req, err := a.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return model.NewPermanentError(op, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("remote request", "method", http.MethodGet, "path", path)

	resp, err := a.client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.NewTransientError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (a *HTTPAdapter) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := a.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	return req, nil
}

// transportError classifies a failed round trip. Cancellation is returned
// as-is so callers can tell an aborted pass from a network failure.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return model.NewTransientError(op, err)
}

// statusError maps a non-success status to the error taxonomy.
func statusError(op string, resp *http.Response) error {
	eb := readErrorBody(resp.Body)
	msg := describe(resp.StatusCode, eb)
	switch {
	// Auth failures are about the device's credentials, not the item, so
	// they retry once credentials are refreshed.
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return model.NewTransientError(op, errors.New(msg))
	default:
		return model.NewPermanentError(op, msg)
	}
}

func readErrorBody(r io.Reader) errorBody {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) != nil || (eb.Code == "" && eb.Message == "") {
		eb = errorBody{Message: strings.TrimSpace(string(raw))}
	}
	return eb
}

func describe(status int, eb errorBody) string {
	msg := fmt.Sprintf("status %d", status)
	if eb.Code != "" {
		msg += " " + eb.Code
	}
	if eb.Message != "" {
		msg += ": " + eb.Message
	}
	return msg
}
