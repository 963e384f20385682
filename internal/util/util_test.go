package util

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestArchiveLinks(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><body>
		<ul>
			<li><a href="psc-snapshot-2024-03-15_1of31.zip">1</a></li>
			<li><a href="/">home</a></li>
			<li><a class="x" href="/files/PSC-SNAPSHOT-2024-03-15_2OF31.ZIP">2</a></li>
			<li><a href="psc-snapshot-2024-03-15_1of31.zip">again</a></li>
			<li><a href="readme.html">readme</a></li>
			<li><a>no href</a></li>
		</ul></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"psc-snapshot-2024-03-15_1of31.zip",
		"/files/PSC-SNAPSHOT-2024-03-15_2OF31.ZIP",
	}, ArchiveLinks(doc, nil, ".zip"))

	base, err := url.Parse("https://download.example.com/en_pscdata.html")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://download.example.com/psc-snapshot-2024-03-15_1of31.zip",
		"https://download.example.com/files/PSC-SNAPSHOT-2024-03-15_2OF31.ZIP",
	}, ArchiveLinks(doc, base, ".zip"))
}

func TestStreamFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("payload"))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
		}
	}))
	defer srv.Close()
	client := DefaultHTTPClient(0)

	var buf bytes.Buffer
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ok", nil)
	n, err := StreamFile(client, req, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", buf.String())

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/busy", nil)
	_, err = StreamFile(client, req, &buf)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Throttled())
	assert.Equal(t, "slow down", se.Body)
}
