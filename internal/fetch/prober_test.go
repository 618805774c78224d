package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/media"
)

func TestProberSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/head.mp4":
			w.Header().Set("Content-Length", "1048576")
		case "/range.mp4":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusOK)
				return
			}
			assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
			w.Header().Set("Content-Range", "bytes 0-0/4096")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("x"))
		case "/unknown.mp4":
			if f, ok := w.(http.Flusher); ok {
				w.WriteHeader(http.StatusOK)
				f.Flush()
			}
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte("stream"))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProber(srv.Client(), 0)
	ctx := context.Background()

	n, err := p.Size(ctx, srv.URL+"/head.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), n)

	n, err = p.Size(ctx, srv.URL+"/range.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)

	_, err = p.Size(ctx, srv.URL+"/unknown.mp4")
	require.ErrorIs(t, err, ErrUnknownSize)

	_, err = p.Size(ctx, srv.URL+"/missing.mp4")
	var se *StatusError
	require.ErrorAs(t, err, &se)
}

func TestProberObserveFeedsClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", "321")
	}))
	defer srv.Close()

	obs, err := NewProber(srv.Client(), 10).Observe(context.Background(), srv.URL+"/download?id=1")
	require.NoError(t, err)

	res, ok := classify.Classify(obs)
	require.True(t, ok)
	assert.Equal(t, media.KindAudio, res.Kind)
	require.NotNil(t, res.SizeBytes)
	assert.Equal(t, int64(321), *res.SizeBytes)
}

func TestProberRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProber(http.DefaultClient, 1).Size(ctx, "http://127.0.0.1:1/x")
	require.Error(t, err)
}

func TestTotalFromContentRange(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"bytes 0-0/12345", 12345, true},
		{"bytes 0-0/*", 0, false},
		{"", 0, false},
		{"bytes 0-0/", 0, false},
	}
	for _, tt := range tests {
		n, ok := totalFromContentRange(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, n, tt.in)
	}
}
