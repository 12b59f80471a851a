package storage

import (
	"bytes"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxBytes int64 = 10 << 20

// UploadPolicy is the MIME allow-list and byte ceiling every store enforces.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p UploadPolicy) maxBytes() int64 {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

// Allows checks already-known metadata against the policy.
func (p UploadPolicy) Allows(contentType string, size int64) error {
	if size <= 0 {
		return rejected("empty artifact")
	}
	if size > p.maxBytes() {
		return rejected("artifact is %d bytes, limit is %d", size, p.maxBytes())
	}
	if !p.typeAllowed(contentType) {
		return rejected("content type %q is not allowed", contentType)
	}
	return nil
}

func (p UploadPolicy) typeAllowed(contentType string) bool {
	if len(p.AllowedTypes) == 0 {
		return true
	}
	return mimetype.EqualsAny(contentType, p.AllowedTypes...)
}

// Read consumes the upload, enforcing the ceiling on the real byte count and
// sniffing the content type from the bytes rather than the client's claim.
func (p UploadPolicy) Read(r io.Reader) ([]byte, string, error) {
	limit := p.maxBytes()
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, "", err
	}
	if n > limit {
		return nil, "", rejected("artifact exceeds %d bytes", limit)
	}
	data := buf.Bytes()

	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if p.typeAllowed(m.String()) {
			return data, m.String(), p.Allows(m.String(), n)
		}
	}
	return nil, "", rejected("content type %q is not allowed", mt.String())
}
