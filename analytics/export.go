package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Exporter ships aggregated snapshots somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, data *AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter batches snapshots and posts them as a JSON array.
type HTTPExporter struct {
	mu         sync.Mutex
	endpoint   string
	apiKey     string
	httpClient *http.Client
	buffer     []*AggregatedData
	batchSize  int
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &HTTPExporter{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		buffer:     make([]*AggregatedData, 0, batchSize),
		batchSize:  batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data *AggregatedData) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, data)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()
	if full {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("marshal analytics data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// LogExporter writes snapshots to a structured logger.
type LogExporter struct {
	logger *slog.Logger
}

func NewLogExporter(l *slog.Logger) *LogExporter {
	if l == nil {
		l = slog.Default()
	}
	return &LogExporter{logger: l}
}

func (e *LogExporter) Export(ctx context.Context, d *AggregatedData) error {
	e.logger.InfoContext(ctx, "reading activity",
		"period", d.Period,
		"key", d.Key,
		"active_users", d.ActiveUsers,
		"books_added", d.BooksAdded,
		"books_finished", d.BooksFinished,
		"exp_awarded", d.ExpAwarded,
		"levels_reached", d.LevelsReached,
	)
	return nil
}

func (e *LogExporter) Flush(context.Context) error { return nil }
func (e *LogExporter) Close() error                { return nil }

// MultiExporter fans snapshots out to several exporters and reports every failure.
type MultiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

func (e *MultiExporter) Export(ctx context.Context, data *AggregatedData) error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Export(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", exporter, err))
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Flush(ctx context.Context) error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", exporter, err))
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Close() error {
	var errs []error
	for _, exporter := range e.exporters {
		if err := exporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
