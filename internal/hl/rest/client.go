package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type InfoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Dex  string `json:"dex,omitempty"`
}

func (c *Client) Info(ctx context.Context, req interface{}) (map[string]any, error) {
	data, err := c.InfoAny(ctx, req)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected info response %T", data)
	}
	return m, nil
}

func (c *Client) InfoAny(ctx context.Context, req interface{}) (any, error) {
	return c.post(ctx, "/info", req)
}

func (c *Client) AllMids(ctx context.Context) (map[string]any, error) {
	return c.Info(ctx, InfoRequest{Type: "allMids"})
}

func (c *Client) SpotMeta(ctx context.Context) (map[string]any, error) {
	return c.Info(ctx, InfoRequest{Type: "spotMeta"})
}

// MetaAndAssetCtxs returns [meta, assetCtxs] for the main market (dex "") or a builder dex.
func (c *Client) MetaAndAssetCtxs(ctx context.Context, dex string) (any, error) {
	return c.InfoAny(ctx, InfoRequest{Type: "metaAndAssetCtxs", Dex: dex})
}

func (c *Client) ClearinghouseState(ctx context.Context, user, dex string) (map[string]any, error) {
	return c.Info(ctx, InfoRequest{Type: "clearinghouseState", User: user, Dex: dex})
}

func (c *Client) SpotClearinghouseState(ctx context.Context, user string) (map[string]any, error) {
	return c.Info(ctx, InfoRequest{Type: "spotClearinghouseState", User: user})
}

// PerpDexs lists builder dexes; index 0 is null and stands for the main market.
func (c *Client) PerpDexs(ctx context.Context) (any, error) {
	return c.InfoAny(ctx, InfoRequest{Type: "perpDexs"})
}

func (c *Client) post(ctx context.Context, path string, req interface{}) (any, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}
