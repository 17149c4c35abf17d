package assets

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	generationsPrefix = "generations"
	ordersPrefix      = "orders"
	previewObject     = "preview.jpg"
	hdObject          = "hd.png"
)

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// PreviewKey is the primary-store key of a generation's preview, partitioned
// by the UTC date of createdAt. Empty when either input is missing.
func PreviewKey(assetID string, createdAt time.Time) string {
	return generationKey(assetID, createdAt, previewObject)
}

func HDKey(assetID string, createdAt time.Time) string {
	return generationKey(assetID, createdAt, hdObject)
}

func generationKey(assetID string, createdAt time.Time, object string) string {
	id := cleanSegment(assetID)
	if id == "" || createdAt.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/%s", generationsPrefix, createdAt.UTC().Format("2006/01/02"), id, object)
}

// FinalKey namespaces a finished print asset under its order.
func FinalKey(orderID, filename string) string {
	id := cleanSegment(orderID)
	name := cleanSegment(path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/")))
	if id == "" || name == "" || name == "." || name == ".." {
		return ""
	}
	return fmt.Sprintf("%s/%s/final/%s", ordersPrefix, id, name)
}

func cleanSegment(s string) string {
	return strings.Trim(unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
}
