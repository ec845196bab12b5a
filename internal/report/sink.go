package report

import (
	"bytes"
	"net/http"
)

// BufferSink collects a rendered report in memory.
type BufferSink struct {
	Header http.Header
	bytes.Buffer
}

// NewBufferSink returns an empty sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{Header: http.Header{}}
}

// SetHeader records a header value.
func (b *BufferSink) SetHeader(key, value string) {
	b.Header.Set(key, value)
}
