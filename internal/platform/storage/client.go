package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/fabriqly/api/internal/platform/auth"
)

const (
	defaultSignedURLExpiry     = 15 * time.Minute
	maxDownloadSignedURLExpiry = 15 * time.Minute
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidOptions     = errors.New("storage: either upload or download options must be provided")
	errBothIntents        = errors.New("storage: upload and download options cannot be used together")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errMethodNotAllowed   = errors.New("storage: HTTP method not allowed for intent")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errMD5Invalid         = errors.New("storage: content MD5 must be base64 encoded")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// Client generates signed URLs backed by a Signer.
type Client struct {
	signer Signer
	scheme storage.SigningScheme
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ClientOption {
	return func(c *Client) {
		if scheme != 0 {
			c.scheme = scheme
		}
	}
}

// WithClock injects a custom clock for tests.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a new storage signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}

	client := &Client{
		signer: signer,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignedURLOptions capture configuration for upload or download signed URLs.
type SignedURLOptions struct {
	Upload   *UploadOptions
	Download *DownloadOptions
	Query    map[string]string
}

// UploadOptions control upload-specific validation.
type UploadOptions struct {
	Method              string
	ContentType         string
	ContentMD5          string
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// DownloadOptions control download-specific validation and response behaviour.
type DownloadOptions struct {
	Method          string
	ExpiresIn       time.Duration
	Disposition     string
	ResponseType    string
	ParticipantUIDs []string
	Identity        *auth.Identity
	AllowAnonymous  bool
}

// SignedURLResult describes the generated signed URL details.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignedURL creates a signed URL according to the provided options.
func (c *Client) SignedURL(ctx context.Context, bucket, object string, opts SignedURLOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	if ctx == nil {
		return SignedURLResult{}, errors.New("storage: context is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	if opts.Upload == nil && opts.Download == nil {
		return SignedURLResult{}, errInvalidOptions
	}
	if opts.Upload != nil && opts.Download != nil {
		return SignedURLResult{}, errBothIntents
	}

	urlOpts := storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}

	if opts.Upload != nil {
		return c.signUpload(bucket, object, opts, urlOpts)
	}
	return c.signDownload(bucket, object, opts, urlOpts)
}

func (c *Client) signUpload(bucket, object string, opts SignedURLOptions, urlOpts storage.SignedURLOptions) (SignedURLResult, error) {
	upload := opts.Upload

	method, err := normaliseUploadMethod(upload.Method)
	if err != nil {
		return SignedURLResult{}, err
	}

	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		return SignedURLResult{}, errContentTypeMissing
	}
	if len(upload.AllowedContentTypes) > 0 && !contentTypeAllowed(contentType, upload.AllowedContentTypes) {
		return SignedURLResult{}, errContentTypeDenied
	}

	contentMD5 := strings.TrimSpace(upload.ContentMD5)
	if contentMD5 != "" {
		if _, err := base64.StdEncoding.DecodeString(contentMD5); err != nil {
			return SignedURLResult{}, errMD5Invalid
		}
	}

	expiry := upload.ExpiresIn
	if expiry <= 0 {
		expiry = defaultSignedURLExpiry
	}

	headers := map[string]string{"Content-Type": contentType}
	if contentMD5 != "" {
		headers["Content-MD5"] = contentMD5
	}

	var extHeaders []string
	if upload.MaxSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", upload.MaxSize)
		extHeaders = append(extHeaders, "x-goog-content-length-range:"+sizeRange)
		headers["x-goog-content-length-range"] = sizeRange
	}

	expiryTime := c.now().Add(expiry)
	urlOpts.Method = method
	urlOpts.ContentType = contentType
	urlOpts.MD5 = contentMD5
	urlOpts.Headers = extHeaders
	urlOpts.Expires = expiryTime
	if len(opts.Query) > 0 {
		urlOpts.QueryParameters = mapToURLValues(opts.Query)
	}

	signedURL, err := storage.SignedURL(bucket, object, &urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    method,
		ExpiresAt: expiryTime,
		Headers:   headers,
	}, nil
}

func (c *Client) signDownload(bucket, object string, opts SignedURLOptions, urlOpts storage.SignedURLOptions) (SignedURLResult, error) {
	download := opts.Download

	method := strings.ToUpper(strings.TrimSpace(download.Method))
	if method == "" {
		method = httpMethodGet
	}
	if method != httpMethodGet && method != httpMethodHead {
		return SignedURLResult{}, errMethodNotAllowed
	}

	expiry := download.ExpiresIn
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	if expiry > maxDownloadSignedURLExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	if err := AuthorizeDownload(download.Identity, download.ParticipantUIDs, download.AllowAnonymous); err != nil {
		return SignedURLResult{}, err
	}

	queryValues := map[string]string{}
	if download.Disposition != "" {
		queryValues["response-content-disposition"] = download.Disposition
	}
	if download.ResponseType != "" {
		queryValues["response-content-type"] = download.ResponseType
	}
	for key, value := range opts.Query {
		if _, exists := queryValues[key]; !exists {
			queryValues[key] = value
		}
	}

	expiryTime := c.now().Add(expiry)
	urlOpts.Method = method
	urlOpts.Expires = expiryTime
	if len(queryValues) > 0 {
		urlOpts.QueryParameters = mapToURLValues(queryValues)
	}

	signedURL, err := storage.SignedURL(bucket, object, &urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    method,
		ExpiresAt: expiryTime,
	}, nil
}

const (
	httpMethodPut  = "PUT"
	httpMethodPost = "POST"
	httpMethodGet  = "GET"
	httpMethodHead = "HEAD"
)

func normaliseUploadMethod(method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = httpMethodPut
	}
	switch method {
	case httpMethodPut, httpMethodPost:
		return method, nil
	default:
		return "", errMethodNotAllowed
	}
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}

func mapToURLValues(values map[string]string) url.Values {
	out := make(url.Values, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Add(key, values[key])
	}
	return out
}
