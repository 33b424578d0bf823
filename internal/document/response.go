package document

import (
	"bytes"
	"errors"
)

// Response is the output side of Execute. *fiber.Ctx satisfies it.
type Response interface {
	Set(key, value string)
	Send(body []byte) error
}

const (
	ContentTypePDF = "application/pdf"

	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
)

var errAlreadySent = errors.New("response body already sent")

// ResponseRecorder collects headers and body in memory.
type ResponseRecorder struct {
	Header map[string]string
	Body   bytes.Buffer
	sent   bool
}

func NewResponseRecorder() *ResponseRecorder {
	return &ResponseRecorder{Header: make(map[string]string)}
}

func (r *ResponseRecorder) Set(key, value string) {
	if r.Header == nil {
		r.Header = make(map[string]string)
	}
	r.Header[key] = value
}

// Send stores body. A second call fails; the body is written once.
func (r *ResponseRecorder) Send(body []byte) error {
	if r.sent {
		return errAlreadySent
	}
	r.sent = true
	_, err := r.Body.Write(body)
	return err
}

// Sent reports whether Send has been called.
func (r *ResponseRecorder) Sent() bool {
	return r.sent
}
