// Package records is the client for the external record store (Zoho Creator
// REST API v2). It hides the provider's envelope and status conventions behind
// four operations and typed outcomes, and normalizes the inconsistent shapes
// the provider returns for lookups, addresses and counts.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/moverdesk/credential"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/internal/httpclient"
	"github.com/teranos/moverdesk/logger"
)

// Provider application codes.
const (
	CodeSuccess       = 3000
	CodeNoRecords     = 3100
	CodeNoRecordsView = 9280
)

// Record is one raw provider record. Numbers decode as json.Number.
type Record map[string]any

// TokenSource supplies and invalidates the service credential.
type TokenSource interface {
	Token(ctx context.Context) (credential.Credential, error)
	Invalidate()
}

// Config configures a Client.
type Config struct {
	BaseURL string // e.g. https://creator.zoho.com/api/v2
	Owner   string
	App     string
	Tokens  TokenSource
	HTTP    *httpclient.Client
	Logger  *zap.SugaredLogger
}

// Client reads and writes records in one provider application.
type Client struct {
	base   string
	tokens TokenSource
	http   *httpclient.Client
	logger *zap.SugaredLogger
}

// NewClient creates a record store client.
func NewClient(cfg Config) *Client {
	l := cfg.Logger
	if l == nil {
		l = logger.ComponentLogger("records")
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/") + "/" +
			url.PathEscape(cfg.Owner) + "/" + url.PathEscape(cfg.App),
		tokens: cfg.Tokens,
		http:   cfg.HTTP,
		logger: l,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message json.RawMessage `json:"message"`
}

func (e envelope) noData(status int) bool {
	return e.Code == CodeNoRecords || e.Code == CodeNoRecordsView || status == http.StatusNotFound
}

func (e envelope) messageText() string {
	var s string
	if json.Unmarshal(e.Message, &s) == nil {
		return s
	}
	return string(e.Message)
}

// FindByField returns the records in report whose field equals value. Zero
// matches is an empty slice, not an error. See Criteria for value typing.
func (c *Client) FindByField(ctx context.Context, report, field string, value any) ([]Record, error) {
	criteria, err := Criteria(field, value)
	if err != nil {
		return nil, err
	}
	return c.FindByCriteria(ctx, report, criteria)
}

// FindByCriteria lists report filtered by a raw criteria expression. An empty
// criteria lists the report.
func (c *Client) FindByCriteria(ctx context.Context, report, criteria string) ([]Record, error) {
	query := url.Values{}
	if criteria != "" {
		query.Set("criteria", criteria)
	}

	env, status, _, err := c.call(ctx, http.MethodGet, "/report/"+url.PathEscape(report), query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", report)
	}
	if env.noData(status) {
		return []Record{}, nil
	}
	if env.Code != CodeSuccess {
		return nil, errors.Wrapf(&ProviderError{StatusCode: status, Code: env.Code, Message: env.messageText()}, "find in %s", report)
	}

	records, err := decodeRecords(env.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", report)
	}

	c.logger.Debugw("Records found",
		logger.FieldReport, report,
		"criteria", criteria,
		logger.FieldCount, len(records),
	)
	return records, nil
}

// GetByID fetches one record directly by id, or ErrNotFound.
func (c *Client) GetByID(ctx context.Context, report, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if !isDigits(id) {
		return nil, errors.NewInvalidRequestError("record id must be numeric, got %q", id)
	}

	env, status, _, err := c.call(ctx, http.MethodGet, "/report/"+url.PathEscape(report)+"/"+id, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", report, id)
	}
	if env.noData(status) {
		return nil, errors.Wrapf(ErrNotFound, "record %s not found in %s", id, report)
	}
	if env.Code != CodeSuccess {
		return nil, errors.Wrapf(&ProviderError{StatusCode: status, Code: env.Code, Message: env.messageText()}, "get %s/%s", report, id)
	}

	rec, err := decodeRecord(env.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", report, id)
	}
	return rec, nil
}

// Patch partially updates record id in report. A non-success code is a
// *WriteRejectedError carrying the provider's body. Writes are never retried.
func (c *Client) Patch(ctx context.Context, report, id string, fields map[string]any) error {
	id = strings.TrimSpace(id)
	if !isDigits(id) {
		return errors.NewInvalidRequestError("record id must be numeric, got %q", id)
	}
	target := report + "/" + id
	return c.write(ctx, "patch", target, http.MethodPatch, "/report/"+url.PathEscape(report)+"/"+id, fields)
}

// Create adds a record through form.
func (c *Client) Create(ctx context.Context, form string, fields map[string]any) error {
	return c.write(ctx, "create", form, http.MethodPost, "/form/"+url.PathEscape(form), fields)
}

func (c *Client) write(ctx context.Context, op, target, method, path string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"data": fields})
	if err != nil {
		return errors.Wrapf(err, "encode %s of %s", op, target)
	}

	env, status, raw, err := c.call(ctx, method, path, nil, payload)
	if err != nil {
		return errors.Wrapf(err, "%s %s", op, target)
	}
	if env.Code != CodeSuccess {
		rejected := &WriteRejectedError{
			Operation:  op,
			Target:     target,
			StatusCode: status,
			Code:       env.Code,
			Details:    rawOrString(raw),
		}
		c.logger.Warnw("Record store rejected write",
			logger.FieldOperation, op,
			"target", target,
			logger.FieldStatus, status,
			"code", env.Code,
			"details", string(raw),
		)
		return rejected
	}

	c.logger.Debugw("Record store write accepted", logger.FieldOperation, op, "target", target)
	return nil
}

// call performs one authenticated request and decodes the envelope. A 401
// invalidates the cached credential; reads are then retried once with a fresh
// token, writes are not. 429 and "too many requests" bodies become ErrRateLimited.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body []byte) (envelope, int, []byte, error) {
	retryAuth := method == http.MethodGet

	for {
		resp, err := c.send(ctx, method, path, query, body)
		if err != nil {
			return envelope{}, 0, nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
			if retryAuth {
				retryAuth = false
				c.logger.Infow("Service credential rejected, retrying read with a fresh token", logger.FieldPath, path)
				continue
			}
			return envelope{}, resp.StatusCode, resp.Body, errors.Mark(
				errors.WithDetail(ErrCredentialRejected, string(resp.Body)),
				errors.ErrServiceUnavailable,
			)
		}

		if resp.StatusCode == http.StatusTooManyRequests || isTooManyRequests(resp.Body) {
			return envelope{}, resp.StatusCode, resp.Body, errors.Wrapf(ErrRateLimited, "record store %s %s", method, path)
		}

		var env envelope
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			if resp.StatusCode >= 500 {
				return envelope{}, resp.StatusCode, resp.Body, errors.Mark(
					errors.Newf("record store unavailable (status %d)", resp.StatusCode),
					errors.ErrServiceUnavailable,
				)
			}
			if resp.StatusCode == http.StatusNotFound {
				return envelope{}, resp.StatusCode, resp.Body, nil
			}
			return envelope{}, resp.StatusCode, resp.Body, errors.Wrapf(err, "decode record store response (status %d)", resp.StatusCode)
		}
		return env, resp.StatusCode, resp.Body, nil
	}
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*httpclient.Response, error) {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.base + path
	if len(query) > 0 {
		// The provider does not decode '+' as a space inside criteria
		endpoint += "?" + strings.ReplaceAll(query.Encode(), "+", "%20")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build record store request")
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		logger.FromContext(ctx, c.logger).Warnw("Record store call failed",
			logger.FieldMethod, method,
			logger.FieldPath, path,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldError, err,
		)
		return nil, err
	}
	return resp, nil
}

func isTooManyRequests(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("too many requests"))
}

func decodeRecords(data json.RawMessage) ([]Record, error) {
	if len(data) == 0 || string(data) == "null" {
		return []Record{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var list []Record
	if err := dec.Decode(&list); err != nil {
		// Some reports answer a single-match criteria with an object
		single, serr := decodeRecord(data)
		if serr != nil {
			return nil, errors.Wrap(err, "decode record list")
		}
		return []Record{single}, nil
	}
	if list == nil {
		list = []Record{}
	}
	return list, nil
}

func decodeRecord(data json.RawMessage) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	if rec == nil {
		return nil, errors.Wrap(ErrNotFound, "empty record")
	}
	return rec, nil
}

func rawOrString(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
