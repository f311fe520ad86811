package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// ndjsonStream reads one generateChunk per Recv. Close releases the HTTP body,
// which stops Ollama from producing further tokens for this request.
type ndjsonStream struct {
	body    io.ReadCloser
	decoder *json.Decoder

	closeOnce sync.Once
	closeErr  error
	done      bool
}

func newNDJSONStream(body io.ReadCloser) *ndjsonStream {
	return &ndjsonStream{
		body:    body,
		decoder: json.NewDecoder(body),
	}
}

func (s *ndjsonStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		var chunk generateChunk
		if err := s.decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.ErrUnexpectedEOF
			}
			return "", domain.WrapError(domain.ErrTemporary, "ollama stream", err)
		}
		if chunk.Error != "" {
			s.done = true
			return "", domain.WrapError(domain.ErrTemporary, "ollama stream", fmt.Errorf("%s", chunk.Error))
		}
		if chunk.Done {
			s.done = true
			if chunk.Response != "" {
				return chunk.Response, nil
			}
			return "", io.EOF
		}
		if chunk.Response != "" {
			return chunk.Response, nil
		}
	}
}

func (s *ndjsonStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
