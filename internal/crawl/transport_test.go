package crawl

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransportSend(t *testing.T) {
	tr := NewHTTPTransport()
	httpmock.ActivateNonDefault(tr.client(nil))
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example/search",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "gadget", req.URL.Query().Get("q"))
			assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
			cookie, err := req.Cookie("locale")
			require.NoError(t, err)
			assert.Equal(t, "en_US", cookie.Value)
			return httpmock.NewStringResponse(200, "<html>ok</html>"), nil
		})

	resp, err := tr.Send(context.Background(), &Request{
		Method:  "GET",
		URL:     "https://shop.example/search",
		Params:  url.Values{"q": []string{"gadget"}},
		Headers: map[string]string{"User-Agent": "test-agent"},
		Cookies: map[string]string{"locale": "en_US"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", resp.Body)
}

func TestHTTPTransportAppendsToExistingQuery(t *testing.T) {
	tr := NewHTTPTransport()
	httpmock.ActivateNonDefault(tr.client(nil))
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example/wholesale",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "y", req.URL.Query().Get("g"))
			assert.Equal(t, "2", req.URL.Query().Get("page"))
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	_, err := tr.Send(context.Background(), &Request{
		URL:    "https://shop.example/wholesale?g=y",
		Params: url.Values{"page": []string{"2"}},
	})
	require.NoError(t, err)
}

func TestHTTPTransportStatusPassthrough(t *testing.T) {
	tr := NewHTTPTransport()
	httpmock.ActivateNonDefault(tr.client(nil))
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example/blocked",
		httpmock.NewStringResponder(403, "forbidden"))

	resp, err := tr.Send(context.Background(), &Request{URL: "https://shop.example/blocked"})
	require.NoError(t, err, "non-2xx is a response, not a transport error")
	assert.Equal(t, 403, resp.StatusCode)
}

func TestHTTPTransportCachesClientPerProxy(t *testing.T) {
	tr := NewHTTPTransport()
	direct := tr.client(nil)
	assert.Same(t, direct, tr.client(nil))

	proxy := NewProxyRecord("10.0.0.1", 8080, "http")
	viaProxy := tr.client(proxy)
	assert.NotSame(t, direct, viaProxy)
	assert.Same(t, viaProxy, tr.client(proxy))
}
