// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xgrab/internal/media"
)

func net(locator string, headers ...string) NetworkObservation {
	obs := NetworkObservation{Locator: locator}
	for i := 0; i+1 < len(headers); i += 2 {
		obs.Headers = append(obs.Headers, Header{Name: headers[i], Value: headers[i+1]})
	}
	return obs
}

func TestClassifyNetwork(t *testing.T) {
	tests := []struct {
		name     string
		obs      NetworkObservation
		wantOK   bool
		wantKind media.Kind
		wantProv string
	}{
		{
			name:     "content type wins over extension",
			obs:      net("https://cdn.example/file.mp3", "Content-Type", "video/mp4"),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceContentType,
		},
		{
			name:     "content type parameters and case ignored",
			obs:      net("https://cdn.example/stream", "content-type", "Audio/MPEG; charset=binary"),
			wantOK:   true,
			wantKind: media.KindAudio,
			wantProv: media.ProvenanceContentType,
		},
		{
			name:     "hls manifest by content type",
			obs:      net("https://cdn.example/live", "Content-Type", "application/vnd.apple.mpegurl"),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceContentType,
		},
		{
			name:     "absent content type falls back to extension",
			obs:      net("https://cdn.example/clip.MKV?token=1"),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceURLExtension,
		},
		{
			name:     "unrelated content type falls back to extension",
			obs:      net("https://cdn.example/song.flac", "Content-Type", "text/plain"),
			wantOK:   true,
			wantKind: media.KindAudio,
			wantProv: media.ProvenanceURLExtension,
		},
		{
			name:     "disposition quoted filename",
			obs:      net("https://cdn.example/download?id=7", "Content-Disposition", `attachment; filename="talk.m4a"`),
			wantOK:   true,
			wantKind: media.KindAudio,
			wantProv: media.ProvenanceContentDisposition,
		},
		{
			name:     "disposition extended filename",
			obs:      net("https://cdn.example/download?id=8", "Content-Disposition", `attachment; filename*=UTF-8''na%C3%AFve%20clip.webm`),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceContentDisposition,
		},
		{
			name:     "ambiguous type resolved by extension",
			obs:      net("https://cdn.example/movie.mov", "Content-Type", "application/octet-stream"),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceAmbiguousResolved,
		},
		{
			name:     "ambiguous type with conflicting disposition keeps url extension",
			obs:      net("https://cdn.example/file.mp4", "Content-Type", "application/octet-stream", "Content-Disposition", `attachment; filename="track.mp3"`),
			wantOK:   true,
			wantKind: media.KindVideo,
			wantProv: media.ProvenanceAmbiguousResolved,
		},
		{
			name:     "ambiguous type without url extension uses disposition",
			obs:      net("https://cdn.example/download?id=9", "Content-Type", "application/octet-stream", "Content-Disposition", "attachment; filename=a.mp3"),
			wantOK:   true,
			wantKind: media.KindAudio,
			wantProv: media.ProvenanceContentDisposition,
		},
		{
			name:     "url extension checked before disposition",
			obs:      net("https://cdn.example/song.ogg", "Content-Disposition", "attachment; filename=clip.mp4"),
			wantOK:   true,
			wantKind: media.KindAudio,
			wantProv: media.ProvenanceURLExtension,
		},
		{name: "ambiguous without evidence", obs: net("https://cdn.example/blob", "Content-Type", "application/octet-stream")},
		{name: "non http", obs: net("ftp://cdn.example/a.mp4")},
		{name: "data url", obs: net("data:video/mp4;base64,AAAA")},
		{name: "ts segment excluded", obs: net("https://cdn.example/a/seg0.ts", "Content-Type", "video/mp2t")},
		{name: "ts segment with query excluded", obs: net("https://cdn.example/a/seg0.ts?x=1")},
		{name: "numbered segment excluded", obs: net("https://cdn.example/segment-12.mp4", "Content-Type", "video/mp4")},
		{name: "thumbnail excluded", obs: net("https://cdn.example/Thumbnail/a.mp4")},
		{name: "preview excluded", obs: net("https://cdn.example/preview.webm")},
		{name: "ad path excluded", obs: net("https://cdn.example/ads/a.mp4")},
		{name: "not media", obs: net("https://cdn.example/index.html", "Content-Type", "text/html")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Classify(tt.obs)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantProv, res.Provenance)
			assert.Equal(t, tt.obs.Locator, res.Locator)
		})
	}
}

func TestContentTypeBeatsEveryExtension(t *testing.T) {
	for ext := range extensions {
		if ext == "ts" {
			continue
		}
		res, ok := Classify(net("https://cdn.example/file."+ext, "Content-Type", "audio/ogg"))
		require.True(t, ok, ext)
		assert.Equal(t, media.KindAudio, res.Kind, ext)
		assert.Equal(t, media.ProvenanceContentType, res.Provenance, ext)
	}
}

func TestClassifyReportsSizeAndContext(t *testing.T) {
	ctxID := int64(4)
	obs := net("https://cdn.example/a.mp4", "Content-Type", "video/mp4", "Content-Length", "2048")
	obs.ContextID = &ctxID

	res, ok := Classify(&obs)
	require.True(t, ok)
	require.NotNil(t, res.SizeBytes)
	assert.Equal(t, int64(2048), *res.SizeBytes)

	rec, err := res.Record()
	require.NoError(t, err)
	assert.True(t, rec.InContext(4))
	assert.Equal(t, "video/mp4", rec.ContentType)
	assert.Equal(t, int64(2048), *rec.SizeBytes)
}

func TestClassifyIgnoresBadLength(t *testing.T) {
	res, ok := Classify(net("https://cdn.example/a.mp4", "Content-Length", "-5"))
	require.True(t, ok)
	assert.Nil(t, res.SizeBytes)
}

func TestClassifyDom(t *testing.T) {
	tests := []struct {
		name          string
		obs           DomObservation
		wantOK        bool
		wantKind      media.Kind
		wantEphemeral bool
	}{
		{name: "video element", obs: DomObservation{Tag: "VIDEO", Source: "https://cdn.example/x"}, wantOK: true, wantKind: media.KindVideo},
		{name: "audio element", obs: DomObservation{Tag: "audio", Source: "http://cdn.example/y"}, wantOK: true, wantKind: media.KindAudio},
		{name: "blob source", obs: DomObservation{Tag: "video", Source: "blob:https://site.example/8c1f"}, wantOK: true, wantKind: media.KindVideo, wantEphemeral: true},
		{name: "relative source", obs: DomObservation{Tag: "video", Source: "/x.mp4"}},
		{name: "img tag", obs: DomObservation{Tag: "img", Source: "https://cdn.example/x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Classify(tt.obs)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, media.ProvenanceDOMScan, res.Provenance)
			assert.Equal(t, tt.wantEphemeral, res.Ephemeral)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	var obs *NetworkObservation
	_, ok := Classify(obs)
	assert.False(t, ok)
	_, ok = Classify(nil)
	assert.False(t, ok)
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"inline", ""},
		{`attachment; filename="movie.mp4"`, "movie.mp4"},
		{`attachment; filename=movie.mp4`, "movie.mp4"},
		{`attachment; filename*=UTF-8''%E4%B8%AD%E6%96%87.mp4`, "中文.mp4"},
		{`attachment; filename="fallback.mp4"; filename*=UTF-8''real.mkv`, "real.mkv"},
		{`attachment; filename=my movie.mp4`, "my movie.mp4"},
		{`attachment; filename='single.mp3'`, "single.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FilenameFromDisposition(tt.in))
		})
	}
}

func TestPageShortCode(t *testing.T) {
	ref, ok := PageShortCode("https://www.bilibili.com/video/BV1xK4y1a7Zz/?spm=1")
	require.True(t, ok)
	assert.Equal(t, "BV1xK4y1a7Zz", ref.Code)
	assert.Equal(t, "1xK4y1a7Zz", ref.APICode)

	for _, in := range []string{
		"https://www.bilibili.com/bangumi/play/ss1",
		"https://example.com/video/BV1xK4y1a7Zz",
		"ftp://www.bilibili.com/video/BV1xK4y1a7Zz",
		"://bad",
	} {
		_, ok := PageShortCode(in)
		assert.False(t, ok, in)
	}
}
