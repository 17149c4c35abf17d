package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfThroughWrapping(t *testing.T) {
	cause := errors.New("bucket write refused")
	err := fmt.Errorf("upload final: %w", Upstream(cause))

	if got := CodeOf(err); got != CodeUpstreamUnavailable {
		t.Fatalf("CodeOf: want=%q got=%q", CodeUpstreamUnavailable, got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is: cause lost")
	}
	var e *Error
	if !errors.As(err, &e) || e.Status != http.StatusServiceUnavailable {
		t.Fatalf("status: want=%d got=%+v", http.StatusServiceUnavailable, e)
	}
}

func TestRequiresManualReview(t *testing.T) {
	if RequiresManualReview(NotAllowed(errors.New("quota"))) {
		t.Fatalf("not_allowed must not require review")
	}
	if !RequiresManualReview(Decode(errors.New("bad png"))) {
		t.Fatalf("decode_error must require review")
	}
	if !RequiresManualReview(fmt.Errorf("composite: %w", Render(errors.New("png writer")))) {
		t.Fatalf("render_error must require review")
	}
	if RequiresManualReview(errors.New("plain")) {
		t.Fatalf("unclassified error must not require review")
	}
}
