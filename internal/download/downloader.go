// Package download saves a chosen image into the workspace or an S3 bucket
// and records it in the download ledger.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/storage"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/moddengine/devstock/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	downloadTimeout = 30 * time.Second
	userAgent       = "DevStock/1.0"
	maxImageBytes   = 64 << 20
)

var downloadCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "devstock_downloads_total",
		Help: "Image downloads, by sink and outcome.",
	},
	[]string{"sink", "outcome"},
)

func init() {
	prometheus.MustRegister(downloadCounter)
}

// Ledger records finished downloads.
type Ledger interface {
	RecordDownload(ctx context.Context, d store.Download) (int64, error)
}

type Option func(*Downloader)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.http = c
		}
	}
}

// WithUploader enables s3:// download paths.
func WithUploader(u storage.Uploader) Option {
	return func(d *Downloader) {
		d.uploader = u
	}
}

func WithLedger(l Ledger) Option {
	return func(d *Downloader) {
		d.ledger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Downloader) {
		d.now = now
	}
}

type Downloader struct {
	workspace string
	settings  config.Source
	http      *http.Client
	uploader  storage.Uploader
	ledger    Ledger
	log       *zap.Logger
	now       func() time.Time
}

// New returns a downloader writing below workspace. An empty workspace is
// allowed; local downloads then fail with stock.ErrNoWorkspace.
func New(workspace string, settings config.Source, log *zap.Logger, opts ...Option) *Downloader {
	d := &Downloader{
		workspace: workspace,
		settings:  settings,
		http:      &http.Client{Timeout: downloadTimeout},
		log:       log.Named("download"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches img at the requested size. Local downloads return the
// path relative to the workspace using forward slashes; S3 downloads return
// the object URL.
func (d *Downloader) Download(ctx context.Context, img stock.Image, size stock.ImageSize) (string, error) {
	if size == "" {
		size = stock.SizeMedium
	}
	log := d.log.With(zap.String("image", img.Id), zap.String("size", string(size)))

	downloadPath := d.settings.Settings().DownloadPath
	loc, remote := storage.ParseLocation(downloadPath)
	sink := "workspace"
	if remote {
		sink = "s3"
		if d.uploader == nil {
			return "", &stock.Error{
				Kind:    stock.ErrNoWorkspace,
				Message: "S3 storage is not configured. Set the S3 credentials or use a local download path.",
			}
		}
	} else if d.workspace == "" {
		return "", &stock.Error{
			Kind:    stock.ErrNoWorkspace,
			Message: "No workspace folder is open. Please open a folder first.",
		}
	}

	source := img.DownloadUrls.Pick(size)
	if source == "" {
		return "", &stock.Error{
			Kind:     stock.ErrNoDownloadURL,
			Provider: img.Provider,
			Message:  "No download URL available for this image.",
		}
	}

	data, contentType, err := d.fetch(ctx, source)
	if err != nil {
		log.Error("Download failed", zap.Error(err))
		downloadCounter.WithLabelValues(sink, "fetch_error").Inc()
		return "", &stock.Error{
			Kind:     stock.ErrProvider,
			Provider: img.Provider,
			Message:  "Failed to download image: " + reason(err),
			Err:      err,
		}
	}
	sniffed := mimetype.Detect(data)
	if !IsImage(sniffed) {
		log.Warn("Downloaded payload is not an image", zap.String("type", sniffed.String()))
		downloadCounter.WithLabelValues(sink, "not_image").Inc()
		return "", &stock.Error{
			Kind:     stock.ErrNotAnImage,
			Provider: img.Provider,
			Message:  "The downloaded file is not an image.",
		}
	}
	name := FileName(img.Description, d.now()) + Extension(contentType, sniffed, source)

	var saved string
	if remote {
		saved, err = d.uploader.Upload(ctx, loc.Bucket, loc.Key(name), sniffed.String(), data)
	} else {
		saved, err = d.save(downloadPath, name, data)
	}
	if err != nil {
		log.Error("Failed to store image", zap.Error(err))
		downloadCounter.WithLabelValues(sink, "store_error").Inc()
		return "", &stock.Error{
			Kind:     stock.ErrProvider,
			Provider: img.Provider,
			Message:  "Download error: " + err.Error(),
			Err:      err,
		}
	}
	downloadCounter.WithLabelValues(sink, "ok").Inc()
	log.Info("Image downloaded", zap.String("path", saved), zap.Int("bytes", len(data)))

	if d.ledger != nil {
		_, err := d.ledger.RecordDownload(ctx, store.Download{
			ImageID:   img.Id,
			Provider:  string(img.Provider),
			Size:      string(size),
			Path:      saved,
			SourceURL: img.SourceUrl,
			Created:   d.now(),
		})
		if err != nil {
			log.Warn("Download not recorded", zap.Error(err))
		}
	}
	return saved, nil
}

func (d *Downloader) fetch(ctx context.Context, source string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxImageBytes {
		return nil, "", errors.New("image exceeds " + strconv.Itoa(maxImageBytes>>20) + " MB")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (d *Downloader) save(downloadPath string, name string, data []byte) (string, error) {
	dir := filepath.Join(d.workspace, filepath.FromSlash(downloadPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(d.workspace, full)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func reason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
