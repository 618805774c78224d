package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapGetter struct {
	bodies map[string]string
	calls  []string
}

func (g *mapGetter) Get(ctx context.Context, locator string) ([]byte, error) {
	g.calls = append(g.calls, locator)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, ok := g.bodies[locator]
	if !ok {
		return nil, fmt.Errorf("status 404")
	}
	return []byte(body), nil
}

func TestResolver_FollowsHighestBandwidth(t *testing.T) {
	g := &mapGetter{bodies: map[string]string{
		"https://cdn.example/master.m3u8": "#EXTM3U\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=500\nlow/index.m3u8\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=2000\nhigh/index.m3u8\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=1000\nmid/index.m3u8\n",
		"https://cdn.example/high/index.m3u8": "#EXTM3U\n#EXTINF:4,\nseg0.ts\n#EXTINF:4,\nseg1.ts\n",
	}}

	doc, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example/high/seg0.ts",
		"https://cdn.example/high/seg1.ts",
	}, doc.Locators())
	assert.Equal(t, []string{"https://cdn.example/master.m3u8", "https://cdn.example/high/index.m3u8"}, g.calls)
}

func TestResolver_MediaPlaylistDirect(t *testing.T) {
	g := &mapGetter{bodies: map[string]string{
		"https://cdn.example/a/index.m3u8": "#EXTM3U\nseg0.ts\nseg1.ts\nseg2.ts",
	}}
	doc, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/a/index.m3u8")
	require.NoError(t, err)
	assert.Len(t, doc.Segments, 3)
}

func TestResolver_FetchError(t *testing.T) {
	g := &mapGetter{bodies: map[string]string{
		"https://cdn.example/master.m3u8": "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nmissing.m3u8\n",
	}}
	_, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/master.m3u8")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "https://cdn.example/missing.m3u8", fe.Locator)
}

func TestResolver_EmptyPlaylist(t *testing.T) {
	g := &mapGetter{bodies: map[string]string{"https://cdn.example/a.m3u8": "#EXTM3U\n"}}
	_, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/a.m3u8")
	require.ErrorIs(t, err, ErrEmptyPlaylist)
}

func TestResolver_BoundsMasterChain(t *testing.T) {
	master := func(next string) string {
		return "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n" + next + "\n"
	}
	g := &mapGetter{bodies: map[string]string{
		"https://cdn.example/m0.m3u8": master("m1.m3u8"),
		"https://cdn.example/m1.m3u8": master("m2.m3u8"),
		"https://cdn.example/m2.m3u8": master("m0.m3u8"),
	}}
	_, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/m0.m3u8")
	require.ErrorIs(t, err, ErrTooManyHops)
	assert.Len(t, g.calls, MaxMasterHops+1)

	g.bodies["https://cdn.example/m2.m3u8"] = "#EXTM3U\nseg.ts\n"
	g.calls = nil
	doc, err := NewResolver(g).Resolve(context.Background(), "https://cdn.example/m0.m3u8")
	require.NoError(t, err, "two master hops are allowed")
	assert.Equal(t, []string{"https://cdn.example/seg.ts"}, doc.Locators())
}

func TestResolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &mapGetter{bodies: map[string]string{"https://cdn.example/a.m3u8": "#EXTM3U\na.ts\n"}}
	_, err := NewResolver(g).Resolve(ctx, "https://cdn.example/a.m3u8")
	require.True(t, errors.Is(err, context.Canceled))
}

type httpGetter struct{ client *http.Client }

func (g httpGetter) Get(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	buf := make([]byte, 0, 512)
	tmp := make([]byte, 512)
	for {
		n, err := resp.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

func TestResolver_OverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=900\n720p/index.m3u8\n")
	})
	mux.HandleFunc("/live/720p/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:6,\nchunk-0.ts\n#EXTINF:6,\nchunk-1.ts\n#EXT-X-ENDLIST\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc, err := NewResolver(httpGetter{client: srv.Client()}).Resolve(context.Background(), srv.URL+"/live/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/live/720p/chunk-0.ts", srv.URL + "/live/720p/chunk-1.ts"}, doc.Locators())
	assert.True(t, doc.IsVOD)
}
