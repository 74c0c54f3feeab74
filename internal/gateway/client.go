package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/resolver"
)

// RightsErrorCode is the gateway's error code for a refused media request.
const RightsErrorCode = 2002

// Client talks to the catalog gateway's media endpoints.
type Client struct {
	BaseURL      string
	LicenseToken string
	http         *http.Client
}

func New(baseURL, licenseToken string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:      baseURL,
		LicenseToken: licenseToken,
		http:         &http.Client{Timeout: timeout},
	}
}

type bulkRequest struct {
	LicenseToken string   `json:"license_token"`
	Format       string   `json:"format"`
	Cipher       string   `json:"cipher"`
	TrackTokens  []string `json:"track_tokens"`
}

// ResolveTokens implements resolver.BulkResolver.
func (c *Client) ResolveTokens(ctx context.Context, tokens []string, tier domain.Quality) ([]resolver.BulkEntry, error) {
	payload, err := json.Marshal(bulkRequest{
		LicenseToken: c.LicenseToken,
		Format:       tier.Name,
		Cipher:       resolver.CipherBlock,
		TrackTokens:  tokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/media/resolve", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	if errs := root.Get("errors").Array(); len(errs) > 0 {
		return nil, gatewayError(errs[0])
	}

	data := root.Get("data").Array()
	entries := make([]resolver.BulkEntry, len(data))
	for i, d := range data {
		if errs := d.Get("errors").Array(); len(errs) > 0 {
			entries[i].Err = gatewayError(errs[0])
			continue
		}

		media := d.Get("media.0")
		for _, src := range media.Get("sources.#.url").Array() {
			entries[i].Sources = append(entries[i].Sources, src.String())
		}
		entries[i].Cipher = media.Get("cipher.type").String()
		entries[i].Key, entries[i].Nonce, entries[i].Err = keyMaterial(media)
	}
	return entries, nil
}

// ResolveTrack implements resolver.SingleResolver.
func (c *Client) ResolveTrack(ctx context.Context, track *domain.Track, tier domain.Quality) (domain.Resolution, error) {
	if track.DirectURL != "" {
		return domain.Resolution{URL: track.DirectURL, Encryption: domain.Plaintext{}}, nil
	}

	q := url.Values{}
	q.Set("format", tier.Name)
	q.Set("protocol", string(track.Protocol))
	if track.MD5Origin != "" {
		q.Set("md5_origin", track.MD5Origin)
		q.Set("media_version", track.MediaVersion)
	}
	u := fmt.Sprintf("%s/v1/tracks/%s/source?%s", c.BaseURL, url.PathEscape(track.ID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Resolution{}, err
	}
	if c.LicenseToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.LicenseToken)
	}

	body, err := c.do(req)
	if err != nil {
		return domain.Resolution{}, err
	}

	res := gjson.ParseBytes(body)
	src := res.Get("url").String()
	if src == "" {
		return domain.Resolution{}, fmt.Errorf("%w: no url for %s at %s", domain.ErrSourceNotFound, track.ID, tier.Name)
	}

	key, nonce, err := keyMaterial(res)
	if err != nil {
		return domain.Resolution{}, err
	}
	enc, err := resolver.Encryption(track, res.Get("cipher").String(), key, nonce)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("track %s at %s: %w", track.ID, tier.Name, err)
	}
	return domain.Resolution{URL: src, Encryption: enc}, nil
}

// do runs req and maps transport and status failures onto domain errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrResolutionTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrResolutionTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", domain.ErrNoRights, req.URL.Path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: gateway returned status: %d", domain.ErrResolutionTransient, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: gateway returned invalid json", domain.ErrResolutionTransient)
	}
	return body, nil
}

func gatewayError(e gjson.Result) error {
	code := e.Get("code").Int()
	msg := e.Get("message").String()
	if code == RightsErrorCode || e.Get("type").String() == "NoRightOnMedia" {
		return fmt.Errorf("%w: %s", domain.ErrNoRights, msg)
	}
	return fmt.Errorf("gateway error %d: %s", code, msg)
}

func keyMaterial(r gjson.Result) (key, nonce []byte, err error) {
	k, n := r.Get("key").String(), r.Get("nonce").String()
	if k == "" && n == "" {
		return nil, nil, nil
	}
	if key, err = hex.DecodeString(k); err != nil {
		return nil, nil, fmt.Errorf("decode key: %w", err)
	}
	if nonce, err = hex.DecodeString(n); err != nil {
		return nil, nil, fmt.Errorf("decode nonce: %w", err)
	}
	if len(key) == 0 || len(nonce) == 0 {
		return nil, nil, errors.New("key material incomplete")
	}
	return key, nonce, nil
}
