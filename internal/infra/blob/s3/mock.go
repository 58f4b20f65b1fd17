package s3

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewMockForTests returns a Store backed by an in-memory fake S3 transport.
// Only the object operations used by core.Store are implemented.
func NewMockForTests() *Store {
	store, err := New(context.Background(), mockConfig(newMockTransport(0)))
	if err != nil {
		panic(fmt.Sprintf("s3 mock: %v", err))
	}
	return store
}

func mockConfig(rt http.RoundTripper) Config {
	return Config{
		Region:          defaultRegion,
		Bucket:          "mock-bucket",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	}
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// mockTransport serves path-style requests: /<bucket>/<key>.
type mockTransport struct {
	mu       sync.Mutex
	objects  map[string]mockObject
	pageSize int // 0 disables list pagination
	requests int
}

func newMockTransport(pageSize int) *mockTransport {
	return &mockTransport{objects: make(map[string]mockObject), pageSize: pageSize}
}

const metaHeaderPrefix = "X-Amz-Meta-"

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()
	if req.Method == http.MethodGet && query.Get("list-type") == "2" {
		return m.list(query.Get("prefix"), query.Get("continuation-token"))
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), nil), nil
	case http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			body := []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}}, body), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), obj.body), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if isChunked(req.Header) {
			if body, err = decodeChunked(body); err != nil {
				return respond(http.StatusBadRequest, nil, nil), nil
			}
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if strings.HasPrefix(http.CanonicalHeaderKey(name), metaHeaderPrefix) && len(values) > 0 {
				md[strings.ToLower(name[len(metaHeaderPrefix):])] = values[0]
			}
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: time.Now().UTC()}
		return respond(http.StatusOK, http.Header{"Etag": {`"` + etagOf(body) + `"`}}, nil), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	Contents              []listContents `xml:"Contents"`
}

type listContents struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (m *mockTransport) list(prefix, token string) (*http.Response, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			return respond(http.StatusBadRequest, nil, nil), nil
		}
		start = n
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}
	if start > end {
		start = end
	}
	res := listResult{}
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		res.Contents = append(res.Contents, listContents{
			Key:          k,
			Size:         len(obj.body),
			ETag:         `"` + etagOf(obj.body) + `"`,
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	res.KeyCount = len(res.Contents)
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}
	body, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, append([]byte(xml.Header), body...)), nil
}

func objectHeaders(obj mockObject) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Etag":           {`"` + etagOf(obj.body) + `"`},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	if obj.contentType != "" {
		h.Set("Content-Type", obj.contentType)
	}
	for k, v := range obj.metadata {
		h.Set(metaHeaderPrefix+k, v)
	}
	return h
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// etagOf mirrors S3 single-part ETags, which are the hex MD5 of the body.
func etagOf(body []byte) string {
	return fmt.Sprintf("%x", md5.Sum(body))
}

func isChunked(h http.Header) bool {
	return strings.Contains(h.Get("Content-Encoding"), "aws-chunked") || h.Get("X-Amz-Decoded-Content-Length") != ""
}

// decodeChunked strips aws-chunked framing: <hex size>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeHex := strings.TrimSpace(line)
		if i := strings.IndexByte(sizeHex, ';'); i >= 0 {
			sizeHex = sizeHex[:i]
		}
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
