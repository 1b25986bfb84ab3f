package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-tonesense/internal/capture"
	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/logger"
	"go-tonesense/pkg/models"
	"go-tonesense/pkg/validation"
)

const (
	analyzePath       = "/api/analyze"
	analyzeBase64Path = "/api/analyze-base64"
	healthPath        = "/api/health"

	// Responses carry a preview data URL, so they can be large
	maxResponseBytes = 32 << 20

	fallbackDetail = "Analysis failed"
)

// AnalysisClient submits images to the remote analysis service
type AnalysisClient interface {
	SubmitFile(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error)
	SubmitCapture(ctx context.Context, img *capture.CapturedImage) (*models.AnalysisResponse, error)
	Health(ctx context.Context) (*models.HealthResponse, error)
}

// Options configure an HTTPAnalysisClient
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	UserAgent   string
	HTTPClient  *http.Client
}

// HTTPAnalysisClient implements AnalysisClient over HTTP
type HTTPAnalysisClient struct {
	baseURL     string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	userAgent   string
}

// NewHTTPAnalysisClient creates a client for the service at opts.BaseURL
func NewHTTPAnalysisClient(opts Options) *HTTPAnalysisClient {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ToneSense-Client/1.0"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}

	return &HTTPAnalysisClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		client:      httpClient,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		userAgent:   opts.UserAgent,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// One service, a handful of requests per session
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 8192,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
}

// SubmitFile posts the file as the multipart field "file"
func (c *HTTPAnalysisClient) SubmitFile(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	name := file.Name
	if name == "" {
		name = "upload"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	header.Set("Content-Type", file.MIMEType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build upload request", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, apperrors.NewInternalError("failed to build upload request", err)
	}
	if err := mw.Close(); err != nil {
		return nil, apperrors.NewInternalError("failed to build upload request", err)
	}

	var resp models.AnalysisResponse
	if err := c.do(ctx, http.MethodPost, analyzePath, mw.FormDataContentType(), body.Bytes(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitCapture posts the capture data URL as {"image": ...}
func (c *HTTPAnalysisClient) SubmitCapture(ctx context.Context, img *capture.CapturedImage) (*models.AnalysisResponse, error) {
	if img == nil || img.EncodedData == "" {
		return nil, apperrors.NewValidationError("no captured image to submit", nil)
	}

	payload, err := json.Marshal(models.Base64AnalysisRequest{Image: img.EncodedData})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode capture request", err)
	}

	var resp models.AnalysisResponse
	if err := c.do(ctx, http.MethodPost, analyzeBase64Path, "application/json", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health queries the service liveness endpoint
func (c *HTTPAnalysisClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	var resp models.HealthResponse
	if err := c.do(ctx, http.MethodGet, healthPath, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends the request, retrying transport failures and 502/503/504 with
// linear backoff. Other failures return at once.
func (c *HTTPAnalysisClient) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	requestID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
	})

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		started := time.Now()
		retryable, err := c.attempt(ctx, method, path, contentType, requestID, body, out)
		if err == nil {
			log.WithFields(logrus.Fields{
				"attempt":  attempt,
				"duration": time.Since(started),
			}).Debug("Analysis service request succeeded")
			return nil
		}
		lastErr = err

		if !retryable || ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}

		log.WithError(err).WithField("attempt", attempt).Warn("Analysis service request failed, retrying")
		select {
		case <-ctx.Done():
			return transportError(ctx.Err())
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	log.WithError(lastErr).Error("Analysis service request failed")
	return lastErr
}

func (c *HTTPAnalysisClient) attempt(ctx context.Context, method, path, contentType, requestID string, body []byte, out interface{}) (bool, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, apperrors.NewInternalError("invalid analysis service request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return true, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return true, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return isRetryableStatus(resp.StatusCode), apperrors.NewAnalysisError(resp.StatusCode, extractDetail(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			appErr := apperrors.NewAnalysisError(http.StatusBadGateway, fallbackDetail)
			appErr.Cause = err
			return false, appErr
		}
	}
	return false, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// extractDetail pulls the human-readable text out of a {"detail": ...}
// failure body. Non-string details are returned as compact JSON.
func extractDetail(data []byte) string {
	var body models.ServiceErrorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return fallbackDetail
	}

	raw := bytes.TrimSpace(body.Detail)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallbackDetail
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return fallbackDetail
		}
		return s
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return fallbackDetail
	}
	return compact.String()
}

// transportError classifies a failure that produced no response
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		appErr := apperrors.NewNetworkError("could not reach the analysis service", err)
		appErr.Details = "the analysis service did not respond in time"
		return appErr
	}
	return apperrors.NewNetworkError("could not reach the analysis service", err)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
