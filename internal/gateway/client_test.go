package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gotrack/internal/domain"
)

var flac = domain.Quality{Name: "FLAC", Code: 9}

func TestResolveTokensParsesEntries(t *testing.T) {
	var got bulkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/media/resolve", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{"data":[
			{"media":[{"cipher":{"type":"BF_CBC_STRIPE"},"sources":[{"url":"https://a/1"},{"url":"https://b/1"}]}]},
			{"errors":[{"code":2000,"message":"invalid token"}]},
			{"media":[{"cipher":{"type":"AES_CTR"},"key":"00112233445566778899aabbccddeeff","nonce":"0f0e0d0c0b0a09080706050403020100","sources":[{"url":"https://a/3"},{"url":"https://b/3"}]}]}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "lic", time.Second)
	entries, err := c.ResolveTokens(context.Background(), []string{"t1", "t2", "t3"}, flac)
	require.NoError(t, err)

	assert.Equal(t, "lic", got.LicenseToken)
	assert.Equal(t, "FLAC", got.Format)
	assert.Equal(t, []string{"t1", "t2", "t3"}, got.TrackTokens)

	require.Len(t, entries, 3)
	assert.Equal(t, []string{"https://a/1", "https://b/1"}, entries[0].Sources)
	assert.Equal(t, "BF_CBC_STRIPE", entries[0].Cipher)
	assert.Error(t, entries[1].Err)
	assert.Equal(t, "AES_CTR", entries[2].Cipher)
	assert.Len(t, entries[2].Key, 16)
	assert.Len(t, entries[2].Nonce, 16)
}

func TestResolveTokensRightsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"code":2002,"type":"NoRightOnMedia","message":"no rights"}]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).ResolveTokens(context.Background(), []string{"t"}, flac)
	assert.ErrorIs(t, err, domain.ErrNoRights)
}

func TestResolveTrackStatusMapping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		assert.Equal(t, "/v1/tracks/42/source", r.URL.Path)
		assert.Equal(t, "FLAC", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`{"url":"https://cdn/42.flac","cipher":"BF_CBC_STRIPE"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	track := &domain.Track{ID: "42", Protocol: domain.ProtocolGateway}

	res, err := c.ResolveTrack(context.Background(), track, flac)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/42.flac", res.URL)
	assert.Equal(t, domain.BlockCipherCBC{Seed: "42"}, res.Encryption)

	status = http.StatusNotFound
	_, err = c.ResolveTrack(context.Background(), track, flac)
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	status = http.StatusBadGateway
	_, err = c.ResolveTrack(context.Background(), track, flac)
	assert.ErrorIs(t, err, domain.ErrResolutionTransient)
}

func TestResolveTrackDirectURLSkipsNetwork(t *testing.T) {
	c := New("http://127.0.0.1:1", "", time.Second)
	track := &domain.Track{ID: "ep1", Kind: domain.KindEpisode, DirectURL: "https://pod/ep1.mp3"}

	res, err := c.ResolveTrack(context.Background(), track, domain.Quality{Name: "EPISODE"})
	require.NoError(t, err)
	assert.Equal(t, "https://pod/ep1.mp3", res.URL)
	assert.Equal(t, domain.Plaintext{}, res.Encryption)
}

func TestResolveTrackRejectsUnusableCipher(t *testing.T) {
	reply := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	track := &domain.Track{ID: "42", Protocol: domain.ProtocolStream}

	for name, body := range map[string]string{
		"missing cipher":  `{"url":"https://cdn/42.ogg"}`,
		"unknown cipher":  `{"url":"https://cdn/42.ogg","cipher":"RC4"}`,
		"ctr without key": `{"url":"https://cdn/42.ogg","cipher":"AES_CTR"}`,
	} {
		reply = body
		_, err := c.ResolveTrack(context.Background(), track, flac)
		assert.ErrorIs(t, err, domain.ErrUnsupportedCipher, name)
	}

	reply = `{"url":"https://cdn/42.ogg","cipher":"AES_CTR","key":"00112233445566778899aabbccddeeff","nonce":"0f0e0d0c0b0a09080706050403020100"}`
	res, err := c.ResolveTrack(context.Background(), track, flac)
	require.NoError(t, err)
	assert.IsType(t, domain.StreamCipherCTR{}, res.Encryption)
}
