// =============================================================================
// chms-migrate - Bulk Import Client
// =============================================================================
//
// Sends canonical records straight to the target system's bulk import API
// instead of writing a package.
//
// PROTOCOL:
//   POST {BaseURL}/api/import/{Kind}
//   X-Api-Key: {APIKey}
//   Content-Type: application/json
//
//   [ {record}, {record}, ... ]          <!-- up to BatchSize records -->
//
//   Any 2xx is success. 5xx and transport errors are retried with backoff;
//   other statuses fail the batch immediately.
//
// ORDERING:
//   The batch writer keeps emission order. A batch is sent when it is full
//   or when a record of another kind arrives, so every record reaches the
//   API after the records it was emitted after.
//
// =============================================================================

package importapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// APIKeyHeader carries the API key on every request.
const APIKeyHeader = "X-Api-Key"

// ErrRejected is returned when the API answers a batch with a non-retryable
// status.
var ErrRejected = errors.New("import rejected")

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger logrus.FieldLogger
}

// Client posts record batches to the import API.
type Client struct {
	http      *retryablehttp.Client
	baseURL   string
	apiKey    string
	batchSize int
	log       logrus.FieldLogger
}

// NewClient returns a client for opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("import api: base URL is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.Logger = leveledLogger{log: log.WithField("component", "importapi")}

	return &Client{
		http:      rc,
		baseURL:   base,
		apiKey:    opts.APIKey,
		batchSize: opts.BatchSize,
		log:       log,
	}, nil
}

// Response is the optional JSON body of a successful import.
type Response struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// Import posts one batch of records of the same kind.
func (c *Client) Import(ctx context.Context, kind types.Kind, records []types.Record) (*Response, error) {
	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s batch: %w", kind, err)
	}

	url := c.baseURL + "/api/import/" + string(kind)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build import request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read import response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s batch of %d returned %s: %s",
			ErrRejected, kind, len(records), resp.Status, strings.TrimSpace(string(data)))
	}

	out := &Response{Imported: len(records)}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode import response: %w", err)
		}
	}
	for _, msg := range out.Errors {
		c.log.WithField("kind", kind).Warn(msg)
	}
	return out, nil
}

// =============================================================================
// BATCH WRITER
// =============================================================================

// BatchWriter buffers records and sends them in batches. It implements
// types.Writer; Close sends the last batch.
type BatchWriter struct {
	ctx    context.Context
	client *Client

	kind    types.Kind
	pending []types.Record
	sent    map[types.Kind]int
}

// Writer returns a batch writer whose requests use ctx.
func (c *Client) Writer(ctx context.Context) *BatchWriter {
	return &BatchWriter{ctx: ctx, client: c, sent: make(map[types.Kind]int)}
}

// Write buffers r, sending the buffer first if r is of another kind.
func (w *BatchWriter) Write(r types.Record) error {
	if len(w.pending) > 0 && r.Kind() != w.kind {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	w.kind = r.Kind()
	w.pending = append(w.pending, r)
	if len(w.pending) >= w.client.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush sends the buffered batch.
func (w *BatchWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = nil

	res, err := w.client.Import(w.ctx, w.kind, batch)
	if err != nil {
		return err
	}
	w.sent[w.kind] += len(batch)
	w.client.log.WithFields(logrus.Fields{"kind": w.kind, "records": len(batch), "imported": res.Imported}).Debug("Batch imported")
	return nil
}

// Sent returns the records accepted per kind.
func (w *BatchWriter) Sent() map[types.Kind]int {
	return w.sent
}

// Close sends what is left.
func (w *BatchWriter) Close() error {
	return w.Flush()
}

// =============================================================================
// LOGGING
// =============================================================================

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) fields(kv []interface{}) logrus.FieldLogger {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.log.WithFields(f)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
