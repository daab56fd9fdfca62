package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/starford/mnemo/internal/apperr"
)

// Model describes an installed model.
type Model struct {
	Name       string         `json:"name"`
	Model      string         `json:"model,omitempty"`
	Size       int64          `json:"size"`
	Digest     string         `json:"digest"`
	ModifiedAt string         `json:"modified_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// ListModels returns the installed models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.call(ctx, MetadataTimeout, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = []Model{}
	}
	return out.Models, nil
}

// ShowModel returns the server's description of model unchanged.
func (c *Client) ShowModel(ctx context.Context, model string) (map[string]any, error) {
	model, err := c.model(model)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := c.call(ctx, MetadataTimeout, http.MethodPost, "/api/show", map[string]any{"model": model}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PullProgress is one progress record of a model download.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PullResult summarizes a finished download.
type PullResult struct {
	Model     string `json:"model"`
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Updates   int    `json:"updates"`
}

// PullModel downloads model, reading the newline-delimited progress stream
// until it ends. A record carrying an error aborts the pull. onProgress may
// be nil.
func (c *Client) PullModel(ctx context.Context, model string, onProgress func(PullProgress)) (*PullResult, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model is required: %w", service, apperr.ErrValidation)
	}
	res := &PullResult{Model: model}
	err := c.guard(func() error {
		ctx, cancel := context.WithTimeout(ctx, PullTimeout)
		defer cancel()

		resp, err := c.send(ctx, http.MethodPost, "/api/pull", map[string]any{"model": model, "stream": true})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var p PullProgress
			if err := json.Unmarshal(line, &p); err != nil {
				continue
			}
			if p.Error != "" {
				return fmt.Errorf("%s: pull %s: %w: %s", service, model, apperr.ErrServiceError, p.Error)
			}
			res.Updates++
			if p.Status != "" {
				res.Status = p.Status
			}
			if p.Digest != "" {
				res.Digest = p.Digest
			}
			if p.Total > 0 {
				res.Total = p.Total
			}
			if p.Completed > 0 {
				res.Completed = p.Completed
			}
			if onProgress != nil {
				onProgress(p)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("%s: pull %s: read stream: %w", service, model, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
