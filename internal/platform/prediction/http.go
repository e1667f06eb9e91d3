package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

var acceptedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
}

// HTTPProvider calls a model-serving sidecar:
//
//	POST {base}/v1/models/{model}:predict  {"instances": [[...]]}
//	POST {base}/v1/image:predict           multipart field "file"
//
// Both answer {"label": "...", "confidence": 0.93}.
type HTTPProvider struct {
	baseURL  string
	registry *Registry
	client   *http.Client
}

// NewHTTPProvider returns a provider for baseURL. A nil client gets a 30s
// overall timeout; per-call deadlines come from the caller's context.
func NewHTTPProvider(baseURL string, registry *Registry, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		registry: registry,
		client:   client,
	}
}

type featureRequest struct {
	Instances [][]float64 `json:"instances"`
}

func (p *HTTPProvider) PredictFeatures(ctx context.Context, features map[string]float64, model ModelType) (Result, error) {
	vec, err := p.registry.Vector(model, features)
	if err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(featureRequest{Instances: [][]float64{vec}})
	if err != nil {
		return Result{}, fmt.Errorf("encode features: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:predict", p.baseURL, url.PathEscape(string(model)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req, ErrUnsupportedModelType)
}

func (p *HTTPProvider) PredictImage(ctx context.Context, image []byte) (Result, error) {
	contentType, err := SniffImage(image)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="scan"`},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return Result{}, fmt.Errorf("write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/image:predict", &buf)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return p.do(req, ErrInvalidImage)
}

// SniffImage returns the detected content type of image, or ErrInvalidImage
// when it is empty or not a supported format.
func SniffImage(image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	ct := http.DetectContentType(image)
	if !acceptedImageTypes[ct] {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, ct)
	}
	return ct, nil
}

// do sends req and maps the response. rejected is returned when the model
// server refuses the input itself.
func (p *HTTPProvider) do(req *http.Request, rejected error) (Result, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, ErrModelNotLoaded
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return Result{}, fmt.Errorf("%w: %s", rejected, strings.TrimSpace(string(payload)))
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("%w: model server returned %d", ErrTransient, resp.StatusCode)
	default:
		return Result{}, fmt.Errorf("model server returned unexpected status %d", resp.StatusCode)
	}

	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrInvalidResult, err)
	}
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}
