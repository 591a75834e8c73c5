// Package imaging checks uploaded profile images and turns them into
// embeddable data URIs.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("only JPEG or PNG images are allowed")
	ErrTooLarge        = errors.New("image must be smaller than 5MB")
)

// Upload is an image file as received from a form.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Result is the outcome of an asynchronous encode.
type Result struct {
	DataURI string
	Err     error
}

// Validate rejects uploads that are not JPEG/PNG or exceed MaxSize. An empty
// declared type is resolved by sniffing the first bytes of Data, which are
// pushed back so the upload can still be read in full.
func Validate(u *Upload) error {
	if u == nil || u.Data == nil {
		return fmt.Errorf("empty upload")
	}
	if u.Size > MaxSize {
		return ErrTooLarge
	}
	ct := normalizeType(u.ContentType)
	if ct == "" {
		head := make([]byte, 512)
		n, err := io.ReadFull(u.Data, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read upload: %w", err)
		}
		head = head[:n]
		ct = normalizeType(http.DetectContentType(head))
		u.Data = io.MultiReader(bytes.NewReader(head), u.Data)
		u.ContentType = ct
	}
	if ct != "image/jpeg" && ct != "image/png" {
		return ErrUnsupportedType
	}
	u.ContentType = ct
	return nil
}

// EncodeAsync reads u in a separate goroutine and delivers the data URI on
// the returned channel, which receives exactly one Result and is then closed.
func EncodeAsync(ctx context.Context, u *Upload) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		uri, err := Encode(ctx, u)
		out <- Result{DataURI: uri, Err: err}
	}()
	return out
}

// Encode builds "data:<type>;base64,<payload>" from u. Reads stop at
// MaxSize+1 bytes so a lying Size field cannot exhaust memory.
func Encode(ctx context.Context, u *Upload) (string, error) {
	if u == nil || u.Data == nil {
		return "", fmt.Errorf("empty upload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := io.ReadAll(io.LimitReader(u.Data, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(b) > MaxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ct := normalizeType(u.ContentType)
	if ct == "" {
		ct = normalizeType(http.DetectContentType(b))
	}
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(ct) + base64.StdEncoding.EncodedLen(len(b)))
	sb.WriteString("data:")
	sb.WriteString(ct)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(b))
	return sb.String(), nil
}

func normalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
