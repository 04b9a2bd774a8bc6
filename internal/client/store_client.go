package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/models"
	"agromind/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Attachment is an image sent along with a message. Attachments are never
// queued.
type Attachment struct {
	FileName string
	Data     []byte
}

// StoreClient talks to the message store over its REST API. Failures to
// reach the store (transport errors, 5xx, 408, 429) are NetworkFailure
// errors; other 4xx responses are validation or not-found errors.
type StoreClient struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

func NewStoreClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *StoreClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultClientHTTPTimeoutSec * time.Second}
	}
	return &StoreClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

func (c *StoreClient) ListGroups(ctx context.Context) ([]*models.Group, error) {
	var groups []*models.Group
	err := c.do(ctx, "list groups", http.MethodGet, "/api/groups", nil, "", &groups)
	return groups, err
}

func (c *StoreClient) CreateGroup(ctx context.Context, name, description string) (*models.Group, error) {
	body, err := json.Marshal(map[string]string{"name": name, "description": description})
	if err != nil {
		return nil, err
	}
	var group models.Group
	if err := c.do(ctx, "create group", http.MethodPost, "/api/groups", bytes.NewReader(body), "application/json", &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *StoreClient) ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error) {
	path := "/api/groups/" + url.PathEscape(groupID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var messages []*models.Message
	err := c.do(ctx, "list messages", http.MethodGet, path, nil, "", &messages)
	return messages, err
}

// CreateMessage sends a message. With an attachment the request is
// multipart, otherwise JSON.
func (c *StoreClient) CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft, attachment *Attachment) (*models.Message, error) {
	var (
		body        io.Reader
		contentType string
	)

	if attachment != nil {
		buf, ct, err := multipartDraft(draft, attachment)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	} else {
		data, err := json.Marshal(draft)
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	var msg models.Message
	path := "/api/groups/" + url.PathEscape(groupID) + "/messages"
	if err := c.do(ctx, "create message", http.MethodPost, path, body, contentType, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *StoreClient) PinMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, "pin message", http.MethodPatch, "/api/messages/"+url.PathEscape(id)+"/pin", nil, "", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func multipartDraft(draft models.MessageDraft, attachment *Attachment) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"userId":   draft.AuthorID,
		"userName": draft.AuthorName,
		"text":     draft.Text,
		"lang":     draft.Language,
	}
	if draft.ParentID != nil {
		fields["parentId"] = *draft.ParentID
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	contentType, ok := constants.ImageMimeTypes[strings.ToLower(filepath.Ext(attachment.FileName))]
	if !ok {
		contentType = constants.DefaultMimeType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, attachment.FileName))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(attachment.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *StoreClient) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string, out interface{}) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, "store "+operation,
		attribute.String("http.method", method),
		attribute.String("url.path", path),
	)
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	tracing.Inject(ctx, req.Header)
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		req.Header.Set(tracing.RequestIDHeader, requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewNetworkError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewNetworkError(operation, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	return c.statusError(operation, resp)
}

func (c *StoreClient) statusError(operation string, resp *http.Response) error {
	message := http.StatusText(resp.StatusCode)
	var envelope errors.HTTPErrorResponse
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil && json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	c.logger.WithFields(logrus.Fields{
		"operation":   operation,
		"status_code": resp.StatusCode,
	}).Debug("Store request failed")

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return errors.NewNetworkError(operation, fmt.Errorf("status %d: %s", resp.StatusCode, message))
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, message).WithUserMessage(message)
	default:
		return errors.New(errors.ErrCodeValidationFailed, message).WithUserMessage(message)
	}
}
