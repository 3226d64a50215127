// Package predictor talks to the external burn classification service.
package predictor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"time"

	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

var (
	// ErrUnavailable means the classifier could not be reached or the
	// circuit breaker is open.
	ErrUnavailable = errors.New("predictor unavailable")
	// ErrUnparseable means the classifier answered but no grade or
	// confidence could be extracted.
	ErrUnparseable = errors.New("predictor response has no diagnosis")
)

// RemoteError is a non-2xx answer from the classifier.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("predictor returned %d: %s", e.Status, e.Message)
}

// Client calls POST {baseURL}/predict with a multipart "image" field.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	timeout    time.Duration
}

// New creates a Client. A zero timeout means 30 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "Predictor",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		// A rejected image is the caller's problem, not a sick classifier.
		IsSuccessful: func(err error) bool {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return remote.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, ErrUnparseable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		cb:         gobreaker.NewCircuitBreaker(st),
		timeout:    timeout,
	}
}

// Predict uploads one image and returns the parsed diagnosis.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (models.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.predict(ctx, filename, image)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return models.Prediction{}, err
	}
	return res.(models.Prediction), nil
}

func (c *Client) predict(ctx context.Context, filename string, image io.Reader) (models.Prediction, error) {
	body, contentType, err := encodeImage(filename, image)
	if err != nil {
		return models.Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return models.Prediction{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Prediction{}, &RemoteError{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	return ParsePrediction(raw)
}

func encodeImage(filename string, image io.Reader) (*bytes.Buffer, string, error) {
	if filename == "" {
		filename = "imagen.jpg"
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(filename)))
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("could not read image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
