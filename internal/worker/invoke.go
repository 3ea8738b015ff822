package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	lambdaevents "github.com/aws/aws-lambda-go/events"
)

// ErrBadInvocation is returned for a Lambda payload of no known shape.
var ErrBadInvocation = errors.New("unrecognized invocation payload")

// Invocation is one of ConvertRequest, BatchRequest or S3Notification.
type Invocation interface {
	// Keys returns the source keys in processing order.
	Keys() []string
	// Params returns per-invocation option overrides.
	Params() Overrides
	// Buckets returns every bucket the payload names.
	Buckets() []string
}

// Overrides adjust a Converter's Options for one invocation. Nil fields
// keep the configured value.
type Overrides struct {
	DestPrefix  *string
	Compression *string
	Overwrite   *bool
}

// Apply returns opts with the overrides applied.
func (o Overrides) Apply(opts Options) Options {
	if o.DestPrefix != nil && *o.DestPrefix != "" {
		p := *o.DestPrefix
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		opts.DestPrefix = p
	}
	if o.Compression != nil && *o.Compression != "" {
		opts.Compression = strings.ToUpper(*o.Compression)
	}
	if o.Overwrite != nil {
		opts.Overwrite = *o.Overwrite
	}
	return opts
}

// RequestOptions holds the fields shared by single and batch requests.
type RequestOptions struct {
	SourceBucket string  `json:"source_bucket,omitempty"`
	DestBucket   string  `json:"dest_bucket,omitempty"`
	DestPrefix   *string `json:"dest_prefix,omitempty"`
	Compression  *string `json:"compression,omitempty"`
	Overwrite    *bool   `json:"overwrite,omitempty"`
}

func (c RequestOptions) Params() Overrides {
	return Overrides{DestPrefix: c.DestPrefix, Compression: c.Compression, Overwrite: c.Overwrite}
}

// Buckets returns the buckets named in the request.
func (c RequestOptions) Buckets() []string {
	var out []string
	for _, b := range []string{c.SourceBucket, c.DestBucket} {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ConvertRequest converts one key.
type ConvertRequest struct {
	RequestOptions
	SourceKey string `json:"source_key"`
}

func (r ConvertRequest) Keys() []string { return []string{r.SourceKey} }

// BatchItem is one entry of a BatchRequest.
type BatchItem struct {
	SourceKey string `json:"source_key"`
}

// BatchRequest converts several keys sequentially.
type BatchRequest struct {
	RequestOptions
	Batch []BatchItem `json:"batch"`
}

func (r BatchRequest) Keys() []string {
	keys := make([]string, 0, len(r.Batch))
	for _, item := range r.Batch {
		keys = append(keys, item.SourceKey)
	}
	return keys
}

// S3Notification converts newly created objects.
type S3Notification struct {
	Event lambdaevents.S3Event
}

// Keys returns the decoded object keys of ObjectCreated records.
func (n S3Notification) Keys() []string {
	var keys []string
	for _, rec := range n.Event.Records {
		if !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			continue
		}
		key := rec.S3.Object.URLDecodedKey
		if key == "" {
			// Notification keys are form-encoded ("+" for space).
			if k, err := url.QueryUnescape(rec.S3.Object.Key); err == nil {
				key = k
			} else {
				key = rec.S3.Object.Key
			}
		}
		keys = append(keys, key)
	}
	return keys
}

func (n S3Notification) Params() Overrides { return Overrides{} }

// Buckets returns the bucket of every record.
func (n S3Notification) Buckets() []string {
	var out []string
	for _, rec := range n.Event.Records {
		out = append(out, rec.S3.Bucket.Name)
	}
	return out
}

// InvocationResponse is the conversion function's reply. Single-key
// requests carry Result; batch and notification requests carry Outcome.
type InvocationResponse struct {
	Message string            `json:"message"`
	Result  *ConversionResult `json:"result,omitempty"`
	Outcome *BatchOutcome     `json:"outcome,omitempty"`
}

// ParseInvocation decodes a Lambda payload into its concrete request type
// and validates it.
func ParseInvocation(data []byte) (Invocation, error) {
	var probe struct {
		Records   json.RawMessage `json:"Records"`
		Batch     json.RawMessage `json:"batch"`
		SourceKey *string         `json:"source_key"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInvocation, err)
	}

	switch {
	case len(probe.Records) > 0:
		var ev lambdaevents.S3Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: S3 event: %v", ErrBadInvocation, err)
		}
		return S3Notification{Event: ev}, nil

	case len(probe.Batch) > 0:
		var req BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: batch: %v", ErrBadInvocation, err)
		}
		if len(req.Batch) == 0 {
			return nil, fmt.Errorf("%w: batch is empty", ErrNoRequest)
		}
		for i, item := range req.Batch {
			if strings.TrimSpace(item.SourceKey) == "" {
				return nil, fmt.Errorf("%w: batch item %d has no source_key", ErrBadInvocation, i)
			}
		}
		return req, nil

	case probe.SourceKey != nil:
		var req ConvertRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: convert: %v", ErrBadInvocation, err)
		}
		if strings.TrimSpace(req.SourceKey) == "" {
			return nil, fmt.Errorf("%w: source_key is empty", ErrBadInvocation)
		}
		return req, nil
	}
	return nil, ErrBadInvocation
}
