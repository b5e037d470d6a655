package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestSiteQueue(t *testing.T) {
	site := NewSite(t)
	site.Handle("/cert/1", Status(503), HTML("<p>ok</p>"))

	status, _ := get(t, site.Link("/cert/1"))
	require.Equal(t, 503, status)
	status, body := get(t, site.Link("/cert/1"))
	require.Equal(t, 200, status)
	require.Equal(t, "<p>ok</p>", body)
	// the last reply repeats
	status, _ = get(t, site.Link("/cert/1"))
	require.Equal(t, 200, status)

	status, _ = get(t, site.Link("/unknown"))
	require.Equal(t, 404, status)

	require.Equal(t, 3, site.Hits("/cert/1"))
	require.Equal(t, 4, site.TotalHits())
	require.Len(t, site.Requests("/cert/1"), 3)
}
