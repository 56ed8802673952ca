package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandlerDigestsUserIDAndRedactsLicenseKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("activation",
		"user_id", "USN-0011223344556677",
		"license_key", "3vQB7B6MsDeep",
		"method", "license_activate_full",
	)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["user_id"]; ok {
		t.Fatal("raw user_id must not be logged")
	}
	digest, ok := payload["user_id_fp"].(string)
	if !ok || !strings.HasPrefix(digest, "fp_") {
		t.Fatalf("expected digested user id, got %v", payload["user_id_fp"])
	}
	if got, _ := payload["license_key"].(string); got != redactedValue {
		t.Fatalf("license key must be redacted, got %q", got)
	}
	if got, _ := payload["method"].(string); got != "license_activate_full" {
		t.Fatal("plain keys must pass through untouched")
	}
	if strings.Contains(buf.String(), "USN-0011223344556677") {
		t.Fatal("raw user id leaked into output")
	}
}

func TestDigestIDStableWithinProcess(t *testing.T) {
	a := DigestID("USN-abc")
	b := DigestID("USN-abc")
	if a == "" || a != b {
		t.Fatalf("digest must be stable within one run: %q vs %q", a, b)
	}
	if DigestID("USN-other") == a {
		t.Fatal("different ids must digest differently")
	}
	if DigestID("  ") != "" {
		t.Fatal("blank value digests to empty")
	}
}

func TestHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("license_id", "LIC-001122"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "license_id_fp") {
		t.Fatalf("expected digested license_id key, got %s", buf.String())
	}
	if strings.Contains(buf.String(), "LIC-001122") {
		t.Fatal("raw license id leaked into output")
	}
}
