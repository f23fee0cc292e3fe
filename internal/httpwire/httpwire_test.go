package httpwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdonina/cacheproxy/internal/config"
)

func TestParseRequestAbsoluteURL(t *testing.T) {
	raw := []byte("GET http://127.0.0.1:8081/file.txt HTTP/1.1\r\nHost: 127.0.0.1:8081\r\n\r\n")
	req, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "127.0.0.1", req.Host)
	assert.Equal(t, "8081", req.Port)
	assert.Equal(t, "http", req.Scheme)
}

func TestParseRequestHttpsScheme(t *testing.T) {
	raw := []byte("GET https://example.com/ HTTP/1.1\r\nHost: example.com\r\n\r\n")
	req, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", req.Scheme)
	assert.Equal(t, "443", req.Port)
}

func TestParseRequestMissingHostIsParseError(t *testing.T) {
	raw := []byte("GET /relative HTTP/1.1\r\n\r\n")
	_, err := ParseRequest(raw)
	require.Error(t, err)
	assert.True(t, config.Is(err, config.ErrParse))
}

func TestParseRequestMalformedRequestLine(t *testing.T) {
	_, err := ParseRequest([]byte("garbage\r\n\r\n"))
	require.Error(t, err)
	assert.True(t, config.Is(err, config.ErrParse))
}

func TestParseResponseHeadWithContentLength(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 12\r\n\r\nHello world!")
	resp, err := ParseResponseHead(raw)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.True(t, resp.HasLength)
	assert.EqualValues(t, 12, resp.ContentLength)
}

func TestParseResponseHeadZeroLength(t *testing.T) {
	raw := []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
	resp, err := ParseResponseHead(raw)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
	assert.True(t, resp.HasLength)
	assert.EqualValues(t, 0, resp.ContentLength)
}

func TestParseResponseHeadNoContentLength(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nsome body")
	resp, err := ParseResponseHead(raw)
	require.NoError(t, err)
	assert.False(t, resp.HasLength)
}

func TestParseResponseHeadMalformedStatus(t *testing.T) {
	_, err := ParseResponseHead([]byte("NOT A STATUS LINE\r\n\r\n"))
	require.Error(t, err)
	assert.True(t, config.Is(err, config.ErrParse))
}
