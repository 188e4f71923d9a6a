// Package gallery issues presigned S3 PUT URLs so guests upload photos
// straight to the bucket without the bytes passing through the server.
package gallery

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

var (
	ErrUnsupportedType = errors.New("gallery: unsupported content type")
	ErrTooLarge        = errors.New("gallery: file too large")
	ErrNoSubject       = errors.New("gallery: uploader subject required")
)

// content type -> object key extension
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// AllowedTypes lists accepted content types, sorted.
func AllowedTypes() []string {
	out := make([]string, 0, len(allowedTypes))
	for t := range allowedTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PresignAPI is the slice of *s3.PresignClient the presigner needs.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Client   PresignAPI
	Bucket   string
	Prefix   string
	TTL      time.Duration
	MaxBytes int64
	// Now overrides the clock (tests).
	Now func() time.Time
}

type Presigner struct {
	opts Options
}

func NewPresigner(o Options) (*Presigner, error) {
	if o.Client == nil {
		return nil, xerrors.New("gallery: Client is required")
	}
	if o.Bucket == "" {
		return nil, xerrors.New("gallery: Bucket is required")
	}
	if o.TTL <= 0 {
		o.TTL = 10 * time.Minute
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 15 << 20
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Prefix = strings.Trim(o.Prefix, "/")
	return &Presigner{opts: o}, nil
}

// MaxBytes is the largest accepted upload.
func (p *Presigner) MaxBytes() int64 { return p.opts.MaxBytes }

type Request struct {
	Subject     string
	ContentType string
	Size        int64
}

type Upload struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Presign checks the request and returns a signed PUT for a fresh key
// "<prefix>/<subject>/<uuid><ext>". The signature covers the content type
// and length, so the client must send exactly those.
func (p *Presigner) Presign(ctx context.Context, req Request) (Upload, error) {
	if req.Subject == "" {
		return Upload{}, ErrNoSubject
	}
	ext, ok := allowedTypes[strings.ToLower(req.ContentType)]
	if !ok {
		return Upload{}, ErrUnsupportedType
	}
	if req.Size < 1 || req.Size > p.opts.MaxBytes {
		return Upload{}, ErrTooLarge
	}

	key := p.key(req.Subject, ext)
	out, err := p.opts.Client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.opts.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(strings.ToLower(req.ContentType)),
		ContentLength: aws.Int64(req.Size),
	}, s3.WithPresignExpires(p.opts.TTL))
	if err != nil {
		return Upload{}, xerrors.Wrapf(err, "presign put bucket=%s key=%s", p.opts.Bucket, key)
	}

	headers := make(map[string]string, len(out.SignedHeader))
	for k, vs := range out.SignedHeader {
		if strings.EqualFold(k, "host") || len(vs) == 0 {
			continue
		}
		headers[http.CanonicalHeaderKey(k)] = vs[0]
	}
	return Upload{
		URL:       out.URL,
		Method:    out.Method,
		Headers:   headers,
		Key:       key,
		ExpiresAt: p.opts.Now().Add(p.opts.TTL).UTC(),
	}, nil
}

func (p *Presigner) key(subject, ext string) string {
	name := uuid.NewString() + ext
	if p.opts.Prefix == "" {
		return safeSegment(subject) + "/" + name
	}
	return p.opts.Prefix + "/" + safeSegment(subject) + "/" + name
}

// safeSegment maps a subject to a single key segment.
func safeSegment(s string) string {
	if s == "." || s == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.', r == '@':
			return r
		default:
			return '_'
		}
	}, s)
}
