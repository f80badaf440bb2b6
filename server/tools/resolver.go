package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/metrics"
)

// ImageResolver turns image references into data URIs. References that are
// not data URIs are read from files under a public root.
type ImageResolver struct {
	root    string
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewImageResolver serves files below root. m may be nil.
func NewImageResolver(root string, m *metrics.Metrics, logger *zap.Logger) (*ImageResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve public dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageResolver{root: abs, metrics: m, logger: logger}, nil
}

// Resolve returns a data URI for every reference that could be loaded, in
// input order. Unreadable references are logged and skipped.
func (r *ImageResolver) Resolve(ctx context.Context, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if chat.IsDataURI(ref) {
			out = append(out, ref)
			continue
		}

		uri, reason, err := r.load(ref)
		if err != nil {
			r.logger.Warn("Dropping image",
				zap.String("image", ref),
				zap.String("reason", reason),
				zap.Error(err),
			)
			if r.metrics != nil {
				r.metrics.ImagesDropped.WithLabelValues(reason).Inc()
			}
			continue
		}
		out = append(out, uri)
	}
	return out
}

func (r *ImageResolver) load(ref string) (uri, reason string, err error) {
	path, err := r.path(ref)
	if err != nil {
		return "", "outside_root", err
	}

	// Concurrent inquiries about the same file share one read.
	v, err, _ := r.group.Do(path, func() (interface{}, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return "data:" + MIMEType(path) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	})
	if err != nil {
		return "", "read_error", err
	}
	return v.(string), "", nil
}

// path maps ref into the public root, rejecting anything that escapes it.
func (r *ImageResolver) path(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty image path")
	}
	full := filepath.Join(r.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(r.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("image path %q escapes the public directory", ref)
	}
	return full, nil
}

// MIMEType derives an image MIME type from the file extension: .jpg maps to
// image/jpeg, anything else to image/<ext>.
func MIMEType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}
