package objectstore

import "testing"

func TestObjectStorageModeHelpers(t *testing.T) {
	if !IsSupportedMode(ModeGCS) {
		t.Fatalf("ModeGCS should be supported")
	}
	if !IsSupportedMode(ModeGCSEmulator) {
		t.Fatalf("ModeGCSEmulator should be supported")
	}
	if !IsSupportedMode(ModeS3) {
		t.Fatalf("ModeS3 should be supported")
	}
	if IsSupportedMode(Mode("invalid")) {
		t.Fatalf("invalid mode should not be supported")
	}

	if IsEmulatorMode(ModeGCS) {
		t.Fatalf("ModeGCS should not be emulator mode")
	}
	if !IsEmulatorMode(ModeGCSEmulator) {
		t.Fatalf("ModeGCSEmulator should be emulator mode")
	}
	if IsEmulatorMode(ModeS3) {
		t.Fatalf("ModeS3 should not be emulator mode")
	}
}

func TestObjectStorageConfigHelpers(t *testing.T) {
	cfg := Config{Mode: ModeGCS}
	if cfg.IsEmulatorMode() {
		t.Fatalf("gcs config should not be emulator mode")
	}
	if got := cfg.ModeSource(); got != "explicit_or_default" {
		t.Fatalf("ModeSource: want=%q got=%q", "explicit_or_default", got)
	}

	cfg = Config{
		Mode:                  ModeGCSEmulator,
		CompatibilityFallback: true,
	}
	if !cfg.IsEmulatorMode() {
		t.Fatalf("gcs_emulator config should be emulator mode")
	}
	if got := cfg.ModeSource(); got != "compatibility_fallback" {
		t.Fatalf("ModeSource: want=%q got=%q", "compatibility_fallback", got)
	}

	cfg = Config{Mode: ModeS3, S3Endpoint: "minio:9000"}
	if cfg.IsEmulatorMode() {
		t.Fatalf("s3 config should not be emulator mode")
	}
	if got := cfg.ModeSource(); got != "explicit_or_default" {
		t.Fatalf("ModeSource: want=%q got=%q", "explicit_or_default", got)
	}
}
