// Package media rehosts chosen images on the blob store. Rehosting is best
// effort: any failure leaves the original URL in place.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/png"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
)

// Defaults.
const (
	DefaultMaxDimension = 1200
	DefaultQuality      = 85
	hashPrefixLen       = 16
)

var errNotImage = errors.New("response is not an image")

// Config controls how images are transformed and where they land.
type Config struct {
	// Folder is the object prefix inside the bucket.
	Folder       string
	MaxDimension int
	Quality      int
	// ExtraSizes are additional longest-edge sizes written next to the main object.
	ExtraSizes []int
}

// Sink implements enrich.MediaSink.
type Sink struct {
	cfg     Config
	fetcher enrich.Fetcher
	store   enrich.BlobStore
	hasher  enrich.Hasher
	logger  *zap.Logger
}

var _ enrich.MediaSink = (*Sink)(nil)

// New builds a Sink. A nil store yields a disabled sink that always keeps the
// original URL.
func New(cfg Config, fetcher enrich.Fetcher, store enrich.BlobStore, hasher enrich.Hasher, logger *zap.Logger) *Sink {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	cfg.Folder = strings.Trim(cfg.Folder, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, fetcher: fetcher, store: store, hasher: hasher, logger: logger}
}

// Enabled reports whether images are actually rehosted.
func (s *Sink) Enabled() bool {
	return s.store != nil && s.fetcher != nil && s.hasher != nil
}

// Materialize implements enrich.MediaSink. It never fails: on any error the
// original URL is returned and the fallback is logged and counted.
func (s *Sink) Materialize(ctx context.Context, candidateURL string, subjectID string, ct enrich.ContentType) string {
	if !s.Enabled() {
		return candidateURL
	}
	hosted, err := s.rehost(ctx, candidateURL, subjectID, ct)
	if err != nil {
		metrics.ObserveMediaFallback(string(ct))
		s.logger.Warn("media rehost failed; keeping original url",
			zap.String("subject_id", subjectID),
			zap.String("content_type", string(ct)),
			zap.String("url", candidateURL),
			zap.Error(err),
		)
		return candidateURL
	}
	return hosted
}

func (s *Sink) rehost(ctx context.Context, candidateURL, subjectID string, ct enrich.ContentType) (string, error) {
	base, err := s.ObjectPath(candidateURL, subjectID, ct)
	if err != nil {
		return "", err
	}

	resp, err := s.fetcher.Fetch(ctx, enrich.FetchRequest{URL: candidateURL})
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if resp.ContentType != "" && !strings.HasPrefix(strings.ToLower(resp.ContentType), "image/") {
		return "", fmt.Errorf("%w: %s", errNotImage, resp.ContentType)
	}
	src, _, err := image.Decode(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	primary, err := encodeJPEG(fit(src, s.cfg.MaxDimension), s.cfg.Quality)
	if err != nil {
		return "", err
	}
	hosted, err := s.store.PutObject(ctx, base+".jpg", "image/jpeg", primary)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	longest := max(src.Bounds().Dx(), src.Bounds().Dy())
	for _, size := range s.cfg.ExtraSizes {
		if size <= 0 || size >= longest || size >= s.cfg.MaxDimension {
			continue
		}
		data, err := encodeJPEG(fit(src, size), s.cfg.Quality)
		if err != nil {
			return "", err
		}
		if _, err := s.store.PutObject(ctx, fmt.Sprintf("%s-%d.jpg", base, size), "image/jpeg", data); err != nil {
			return "", fmt.Errorf("upload %dpx variant: %w", size, err)
		}
	}
	return hosted, nil
}

// ObjectPath returns the deterministic object path, without extension, for an
// image. Re-running on the same URL targets the same object.
func (s *Sink) ObjectPath(candidateURL, subjectID string, ct enrich.ContentType) (string, error) {
	if s.hasher == nil {
		return "", fmt.Errorf("hasher is required")
	}
	digest, err := s.hasher.Hash([]byte(candidateURL))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	if len(digest) > hashPrefixLen {
		digest = digest[:hashPrefixLen]
	}
	parts := []string{kindFolder(ct.Kind()), subjectID, fmt.Sprintf("%s-%s", ct, digest)}
	if s.cfg.Folder != "" {
		parts = append([]string{s.cfg.Folder}, parts...)
	}
	return strings.Join(parts, "/"), nil
}

func kindFolder(k enrich.Kind) string {
	if k == enrich.KindWinery {
		return "wineries"
	}
	return "wines"
}

// fit scales src so its longest edge is at most limit. Smaller images are
// copied unscaled. Transparent areas are flattened onto white.
func fit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if longest := max(w, h); longest > limit {
		w = max(1, w*limit/longest)
		h = max(1, h*limit/longest)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
