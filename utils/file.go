package utils

import (
	"bufio"
	"errors"
	"io"
	"net/http"
)

// ErrNotAnImage is returned when an upload does not sniff as a supported image.
var ErrNotAnImage = errors.New("file is not a supported image")

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SniffImage peeks at the start of r and reports the image content type and
// file extension. The returned reader still yields the whole stream.
func SniffImage(r io.Reader) (contentType, ext string, body io.Reader, err error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", "", nil, err
	}
	contentType = http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", nil, ErrNotAnImage
	}
	return contentType, ext, br, nil
}
