package domscan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/media"
)

const page = `<!doctype html>
<html><head><title>clip</title></head>
<body>
  <video src="/media/clip.mp4" controls></video>
  <video><source src="hd.webm" type="video/webm"><source src="/media/clip.mp4"></video>
  <audio src="blob:https://site.example/8d7e-11"></audio>
  <audio><source src="https://cdn.example/track.mp3"></audio>
  <video></video>
  <img src="/poster.jpg">
</body></html>`

func TestScanHTML(t *testing.T) {
	ctxID := int64(4)
	got, err := ScanHTML("https://site.example/watch/1", strings.NewReader(page), &ctxID)
	require.NoError(t, err)

	want := []classify.DomObservation{
		{Tag: "video", Source: "https://site.example/media/clip.mp4", ContextID: &ctxID},
		{Tag: "video", Source: "https://site.example/watch/hd.webm", ContextID: &ctxID},
		{Tag: "audio", Source: "blob:https://site.example/8d7e-11", ContextID: &ctxID},
		{Tag: "audio", Source: "https://cdn.example/track.mp3", ContextID: &ctxID},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("observations mismatch (-want +got):\n%s", diff)
	}
}

func TestScanHTMLHonoursBaseHref(t *testing.T) {
	html := `<html><head><base href="https://static.example/assets/"></head><body><video src="v.mp4"></video></body></html>`
	got, err := ScanHTML("https://site.example/p", strings.NewReader(html), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://static.example/assets/v.mp4", got[0].Source)
}

func TestScanFeedsClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	obs, err := NewScanner(srv.Client()).Scan(context.Background(), srv.URL+"/watch/1", nil)
	require.NoError(t, err)
	require.Len(t, obs, 4)

	res, ok := classify.Classify(obs[2])
	require.True(t, ok)
	assert.Equal(t, media.KindAudio, res.Kind)
	assert.Equal(t, media.ProvenanceDOMScan, res.Provenance)
	assert.True(t, res.Ephemeral)
}

func TestScanStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewScanner(srv.Client()).Scan(context.Background(), srv.URL, nil)
	require.Error(t, err)
}

func TestWatchRescansUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<video src="a.mp4"></video>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	scans := 0
	emit := func(obs []classify.DomObservation) {
		mu.Lock()
		defer mu.Unlock()
		scans++
		if scans == 3 {
			cancel()
		}
	}

	err := NewScanner(srv.Client()).Watch(ctx, srv.URL+"/", nil, 5*time.Millisecond, emit)
	require.ErrorIs(t, err, context.Canceled)
	mu.Lock()
	assert.Equal(t, 3, scans)
	mu.Unlock()
	srv.CloseClientConnections()
}
