// Package responseformat negotiates JSON or MessagePack for HTTP request and
// response bodies.
package responseformat

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/x-msgpack"
)

// ErrUnsupportedMediaType is returned by DecodeRequest for an unknown Content-Type
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct {
	maxBodyBytes int64
}

// NewFormatter creates a new formatter. Request bodies larger than
// maxBodyBytes are rejected; zero means unlimited.
func NewFormatter(maxBodyBytes int64) *Formatter {
	return &Formatter{maxBodyBytes: maxBodyBytes}
}

// WriteResponse writes data with the given status. JSON is the default
// format. MessagePack is used when format=msgpack is specified
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	if wantsMsgPack(req) {
		w.Header().Set("Content-Type", ContentTypeMsgPack)
		w.WriteHeader(status)
		return f.writeMsgPack(w, data)
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorBody is the response body of every failed request
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes an error body in the negotiated format
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, err error) error {
	return f.WriteResponse(w, req, status, ErrorBody{Error: err.Error()})
}

// DecodeRequest decodes the request body into v according to its
// Content-Type. A missing Content-Type is treated as JSON.
func (f *Formatter) DecodeRequest(req *http.Request, v any) error {
	body := req.Body
	if f.maxBodyBytes > 0 {
		body = http.MaxBytesReader(nil, req.Body, f.maxBodyBytes)
	}
	defer body.Close()

	mediaType := ContentTypeJSON
	if ct := req.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, ct)
		}
		mediaType = mt
	}

	switch mediaType {
	case ContentTypeJSON:
		if err := json.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	case ContentTypeMsgPack, "application/msgpack", "application/vnd.msgpack":
		decoder := msgpack.NewDecoder(body)
		decoder.SetCustomStructTag("json")
		if err := decoder.Decode(v); err != nil {
			return fmt.Errorf("invalid MessagePack body: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	return nil
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}

func wantsMsgPack(req *http.Request) bool {
	return req.URL.Query().Get("format") == "msgpack"
}
