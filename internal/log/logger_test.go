// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func withBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Reset()
	Configure(Config{Level: "debug", Output: &buf, Service: "xgrab-test", Version: "v0.0.1"})
	t.Cleanup(func() {
		Reset()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	return &buf
}

func TestConfigureAttachesServiceAndVersion(t *testing.T) {
	buf := withBuffer(t)

	l := WithComponent("catalog")
	l.Info().Str(FieldEvent, "catalog.test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry[FieldService] != "xgrab-test" {
		t.Errorf("service = %v", entry[FieldService])
	}
	if entry[FieldVersion] != "v0.0.1" {
		t.Errorf("version = %v", entry[FieldVersion])
	}
	if entry[FieldComponent] != "catalog" {
		t.Errorf("component = %v", entry[FieldComponent])
	}
}

func TestConfigureIsSticky(t *testing.T) {
	buf := withBuffer(t)
	var other bytes.Buffer
	Configure(Config{Output: &other})

	l := Base()
	l.Info().Msg("first writer wins")
	if buf.Len() == 0 {
		t.Fatal("expected output on the first configured writer")
	}
	if other.Len() != 0 {
		t.Fatal("second Configure call should be ignored")
	}
}

func TestSetLevel(t *testing.T) {
	_ = withBuffer(t)
	if !SetLevel("warn") {
		t.Fatal("SetLevel(warn) returned false")
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("global level = %v", zerolog.GlobalLevel())
	}
	if SetLevel("loud") {
		t.Fatal("SetLevel accepted an unknown level")
	}
}

func TestMiddlewareLogsRequest(t *testing.T) {
	buf := withBuffer(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if zerolog.Ctx(r.Context()).GetLevel() == zerolog.Disabled {
			t.Error("expected a logger in the request context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry[FieldEvent] != "request.handled" {
		t.Errorf("event = %v", entry[FieldEvent])
	}
	if entry[FieldStatus] != float64(http.StatusTeapot) {
		t.Errorf("status = %v", entry[FieldStatus])
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v", entry["level"])
	}
}
