package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

const multipartOverhead = 1 << 20

// readUpload reads the multipart "file" part. Size and media type are validated
// by the pipeline; the body limit here only stops runaway requests.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (domain.UploadedDocument, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(rt.maxUploadBytes)+multipartOverhead)
	if err := r.ParseMultipartForm(int64(rt.maxUploadBytes)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.UploadedDocument{}, domain.WrapError(domain.ErrInvalidInput, "read upload",
				fmt.Errorf("file exceeds %d bytes", rt.maxUploadBytes))
		}
		return domain.UploadedDocument{}, domain.WrapError(domain.ErrInvalidInput, "read upload",
			errors.New("multipart form is required"))
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.UploadedDocument{}, domain.WrapError(domain.ErrInvalidInput, "read upload",
			errors.New("multipart field 'file' is required"))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(rt.maxUploadBytes)+1))
	if err != nil {
		return domain.UploadedDocument{}, fmt.Errorf("read upload: %w", err)
	}

	return domain.UploadedDocument{
		Filename:  header.Filename,
		MediaType: domain.MediaType(declaredMediaType(header.Header.Get("Content-Type"), data)),
		Data:      data,
	}, nil
}

// declaredMediaType trusts the part header unless it is missing or generic.
func declaredMediaType(header string, data []byte) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return sniffed
}
