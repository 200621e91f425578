package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	commonhttp "ethics-review/internal/common/http"
	"ethics-review/internal/models"
)

// EntityClient is everything the wizard needs from the ethics review API.
type EntityClient interface {
	CreateApplication(ctx context.Context, app *models.Application) (*models.Application, error)
	UpdateApplication(ctx context.Context, id string, app *models.Application) (*models.Application, error)
	GetApplication(ctx context.Context, id string) (*models.ApplicationAggregate, error)
	CreateInvestigator(ctx context.Context, inv *models.Investigator) (*models.Investigator, error)
	// SaveSection posts a singleton section; the server upserts it.
	SaveSection(ctx context.Context, resource string, in, out any) error
	SaveSections(ctx context.Context, applicationID string, batch SectionBatch) (*SectionBatch, error)
	UploadFile(ctx context.Context, applicationID, name, filename string, body io.Reader) (string, error)
	Submit(ctx context.Context, applicationID string) (*models.Application, error)
}

// SectionBatch is saved in one transaction by the server. A non-nil
// CoInvestigators replaces the stored set, so an empty slice clears it.
type SectionBatch struct {
	Payment         *models.Payment         `json:"payment,omitempty"`
	Confidentiality *models.Confidentiality `json:"confidentiality,omitempty"`
	Declaration     *models.Declaration     `json:"declaration,omitempty"`
	CoInvestigators []models.CoInvestigator `json:"coInvestigators"`
	Checklist       *models.Checklist       `json:"checklist,omitempty"`
}

// HTTPEntityClient implements EntityClient over the JSON API.
type HTTPEntityClient struct {
	http          *commonhttp.Client
	uploadTimeout time.Duration
}

// NewHTTPEntityClient returns a client for the API at baseURL, for example
// http://localhost:8080/api.
func NewHTTPEntityClient(baseURL string, requestTimeout, uploadTimeout time.Duration) *HTTPEntityClient {
	return &HTTPEntityClient{
		http:          commonhttp.NewClient(baseURL, requestTimeout),
		uploadTimeout: uploadTimeout,
	}
}

func (c *HTTPEntityClient) CreateApplication(ctx context.Context, app *models.Application) (*models.Application, error) {
	var out models.Application
	if err := c.call(ctx, http.MethodPost, "/applications", app, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPEntityClient) UpdateApplication(ctx context.Context, id string, app *models.Application) (*models.Application, error) {
	var out models.Application
	if err := c.call(ctx, http.MethodPatch, "/applications/"+url.PathEscape(id), app, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPEntityClient) GetApplication(ctx context.Context, id string) (*models.ApplicationAggregate, error) {
	var out models.ApplicationAggregate
	if err := c.call(ctx, http.MethodGet, "/applications/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPEntityClient) CreateInvestigator(ctx context.Context, inv *models.Investigator) (*models.Investigator, error) {
	var out models.Investigator
	if err := c.call(ctx, http.MethodPost, "/investigators", inv, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPEntityClient) SaveSection(ctx context.Context, resource string, in, out any) error {
	return c.call(ctx, http.MethodPost, "/"+resource, in, out)
}

func (c *HTTPEntityClient) SaveSections(ctx context.Context, applicationID string, batch SectionBatch) (*SectionBatch, error) {
	var out SectionBatch
	if err := c.call(ctx, http.MethodPut, "/applications/"+url.PathEscape(applicationID)+"/sections", batch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPEntityClient) UploadFile(ctx context.Context, applicationID, name, filename string, body io.Reader) (string, error) {
	var out struct {
		FileID string `json:"fileId"`
	}
	err := c.http.Multipart(ctx, "/upload", c.uploadTimeout,
		map[string]string{"applicationId": applicationID, "name": name}, filename, body, &out)
	if err != nil {
		return "", apiError(err)
	}
	return out.FileID, nil
}

func (c *HTTPEntityClient) Submit(ctx context.Context, applicationID string) (*models.Application, error) {
	var out struct {
		Application models.Application `json:"application"`
	}
	if err := c.call(ctx, http.MethodPost, "/applications/"+url.PathEscape(applicationID)+"/submit", nil, &out); err != nil {
		return nil, err
	}
	return &out.Application, nil
}

func (c *HTTPEntityClient) call(ctx context.Context, method, path string, in, out any) error {
	return apiError(c.http.JSON(ctx, method, path, in, out))
}

// apiError decodes the error body of the API into an *APIError. The body
// is either {"error": "message"} or {"error": {"path": "message"}}.
func apiError(err error) error {
	var respErr *commonhttp.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}

	out := &APIError{StatusCode: respErr.StatusCode}
	var body struct {
		Error           json.RawMessage `json:"error"`
		MissingSections []string        `json:"missingSections"`
	}
	if json.Unmarshal(respErr.Body, &body) != nil {
		out.Message = http.StatusText(respErr.StatusCode)
		return out
	}
	out.MissingSections = body.MissingSections
	if json.Unmarshal(body.Error, &out.Message) != nil {
		var fields map[string]string
		if json.Unmarshal(body.Error, &fields) == nil {
			out.Fields = fields
			out.Message = "Validation failed"
		}
	}
	return out
}
