// Package restyutil writes every http exchange of a resty client to a
// directory, one text file per request, for debugging what a remote
// actually answered.
package restyutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// headers whose values are replaced before the exchange is written out
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// Dumper is an output directory for http exchanges.
type Dumper struct {
	dir     string
	counter *uint64
}

// NewDumper creates `dir` if needed, files already in it are kept.
func NewDumper(dir string) (Dumper, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return Dumper{}, err
	}
	var counter uint64
	return Dumper{dir: dir, counter: &counter}, nil
}

// Attach makes `client` write each completed exchange into the dumper's directory.
func (d Dumper) Attach(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		d.write(res)
		return nil
	})
}

func (d Dumper) fileName(res *resty.Response) string {
	n := atomic.AddUint64(d.counter, 1)
	last := "root"
	if res.Request.RawRequest != nil {
		if base := path.Base(res.Request.RawRequest.URL.Path); base != "/" && base != "." {
			last = base
		}
	}
	return fmt.Sprintf("%04d-%s-%s-%d.txt", n, strings.ToLower(res.Request.Method), last, res.StatusCode())
}

func (d Dumper) write(res *resty.Response) {
	name := filepath.Join(d.dir, d.fileName(res))
	err := os.WriteFile(name, []byte(FormatExchange(res)), 0600)
	if err != nil {
		slog.Warn("failed to dump http exchange", "file", name, "err", err.Error())
	}
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if redactedHeaders[http.CanonicalHeaderKey(k)] {
				v = "<redacted>"
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	defer body.Close()
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(contents)
}

const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%d %s

%s

%s`

// FormatExchange renders the request and response of `res` as text with
// credentials redacted.
func FormatExchange(res *resty.Response) string {
	var reqHeaders, reqBody string
	if raw := res.Request.RawRequest; raw != nil {
		reqHeaders = formatHeaders(raw.Header)
		reqBody = formatRequestBody(raw)
	}

	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		reqHeaders,
		reqBody,
		res.StatusCode(), http.StatusText(res.StatusCode()),
		formatHeaders(res.Header()),
		res.String(),
	)
}
