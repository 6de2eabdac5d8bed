package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

var ErrUnexpectedResponse = errors.New("unexpected response code")

// Client pushes captured documents to a collection server.
type Client struct {
	APIKey string
	Server string
	http   *http.Client
}

func NewClient(apikey, server string) (*Client, error) {
	if server == "" {
		return nil, errors.New("missing server url")
	}
	client := &Client{
		APIKey: apikey,
		Server: server,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
	return client, nil
}

type Update struct {
	RunID     string      `json:"runID"`
	Exchanges int         `json:"exchanges"`
	Document  *openapi3.T `json:"document"`
}

func (c *Client) Update(ctx context.Context, args Update) error {
	u := c.formatURL("/api/v1/listener/update")

	bs, err := json.Marshal(&args)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bs))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedResponse, res.StatusCode)
	}
	return nil
}

func (c *Client) formatURL(path string) string {
	return fmt.Sprintf("%s%s", c.Server, path)
}
