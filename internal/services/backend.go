package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
)

// Backend is the client of the analysis backend. It forwards uploads, fetches the summary and the charts
// of the last uploaded file, and opens the streamed chat responses.
type Backend struct {
	baseURL string

	client       *http.Client
	streamClient *http.Client

	logger *slog.Logger
}

// StatusError is returned when the backend answers with a non-2xx status. Message holds the "message"
// field of a JSON error body, when there is one.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status code: %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status code: %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

const (
	uploadEndpoint    = "/upload-data"
	summaryEndpoint   = "/generate-summary"
	visualizeEndpoint = "/visualize-data"
	responseEndpoint  = "/generate-response"

	maxErrorBodySize = 64 << 10
)

// NewBackend creates a Backend for the service at baseURL. timeout bounds upload, summary and
// visualization requests; zero means no timeout. Chat streams are never timed out by the client.
func NewBackend(baseURL string, timeout time.Duration, logger *slog.Logger) Backend {
	return Backend{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger.With(slog.String("module", "backend")),
	}
}

// Upload sends file to the upload gateway as the multipart field "file".
func (b Backend) Upload(ctx context.Context, filename string, file io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("error creating form file: %w", err))
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(fmt.Errorf("error copying file: %w", err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+uploadEndpoint, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(uploadEndpoint, resp); err != nil {
		return err
	}

	b.logger.Info("File uploaded", slog.String("filename", filename))
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Summary fetches the summary of the last uploaded file.
func (b Backend) Summary(ctx context.Context) (models.Summary, error) {
	var s models.Summary
	if err := b.getJSON(ctx, summaryEndpoint, &s); err != nil {
		return models.Summary{}, err
	}
	return s, nil
}

// Visualizations fetches the charts of the last uploaded file.
func (b Backend) Visualizations(ctx context.Context) (models.VisualizationSet, error) {
	var v models.VisualizationSet
	if err := b.getJSON(ctx, visualizeEndpoint, &v); err != nil {
		return models.VisualizationSet{}, err
	}
	return v, nil
}

// GenerateResponse sends query to the chat service and returns the response body once the headers have
// arrived with a 2xx status. The caller reads the body with stream.Read and must close it.
func (b Backend) GenerateResponse(ctx context.Context, query string) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(struct {
		Query string `json:"query"`
	}{Query: query})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+responseEndpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if err := checkStatus(responseEndpoint, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	b.logger.Debug("Response stream opened", slog.String("contentType", resp.Header.Get("Content-Type")))
	return resp.Body, nil
}

func (b Backend) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(endpoint, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding %s response: %w", endpoint, err)
	}
	return nil
}

func checkStatus(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	var errBody struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errBody)

	return &StatusError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Message:    errBody.Message,
	}
}

// ErrorMessage returns the text to show for a failed backend call: the backend's own message when it sent
// one, fallback otherwise.
func ErrorMessage(err error, fallback string) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return fallback
}
