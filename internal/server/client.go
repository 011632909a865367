package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/wire"
)

// Client talks to a running UI server the way the browser does.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

// Query is a single run request.
type Query struct {
	SQL        string
	Params     []string
	Connection string
	Catalog    string
	ChunkLimit int
}

// Run posts q to /ddb/run and decodes the response. A query error comes back
// as a frame of kind FrameError, not as an error.
func (c *Client) Run(ctx context.Context, q Query) (*wire.Frame, error) {
	h := http.Header{}
	if q.Connection != "" {
		h.Set(headerConnectionName, q.Connection)
	}
	if q.Catalog != "" {
		h.Set(headerDatabaseName, base64.StdEncoding.EncodeToString([]byte(q.Catalog)))
	}
	if len(q.Params) > 0 {
		h.Set(headerParamCount, strconv.Itoa(len(q.Params)))
		for i, p := range q.Params {
			h.Set(fmt.Sprintf(headerParamValue, i), base64.StdEncoding.EncodeToString([]byte(p)))
		}
	}
	if q.ChunkLimit > 0 {
		h.Set(headerChunkLimit, strconv.Itoa(q.ChunkLimit))
	}
	body, err := c.post(ctx, "/ddb/run", []byte(q.SQL), h)
	if err != nil {
		return nil, err
	}
	frame, err := wire.Decode(body)
	return frame, errors.Annotate(err, "decoding run response")
}

// Interrupt cancels whatever is running on the named connection.
func (c *Client) Interrupt(ctx context.Context, connection string) error {
	h := http.Header{}
	h.Set(headerConnectionName, connection)
	_, err := c.post(ctx, "/ddb/interrupt", nil, h)
	return err
}

func (c *Client) post(ctx context.Context, path string, body []byte, h http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	for k, v := range h {
		req.Header[k] = v
	}
	req.Header.Set("Origin", c.BaseURL)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "POST %s", path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusNotFound:
		return nil, errors.NotFoundf("%s", path)
	case http.StatusUnauthorized:
		return nil, errors.Unauthorizedf("%s", path)
	default:
		return nil, errors.Errorf("POST %s: %s", path, resp.Status)
	}
}
