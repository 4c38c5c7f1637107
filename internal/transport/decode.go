package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"mime"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decompress undoes a gzip or deflate Content-Encoding. Unknown encodings are
// returned as-is.
//
// "deflate" is ambiguous in the wild: most servers send zlib-wrapped data,
// some send a raw DEFLATE stream. Both are accepted.
func decompress(contentEncoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		gzr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gzr.Close()
		return io.ReadAll(gzr)
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return raw, nil
	}
}

// xmlDeclEncoding extracts the encoding pseudo-attribute of an XML declaration.
var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding=["']([A-Za-z0-9._-]+)["']`)

// decodeText converts body to a UTF-8 string.
//
// The Content-Type charset wins. XML documents without one fall back to the
// encoding named in their declaration. Everything else goes through the HTML
// sniffing of x/net/html/charset (BOM, <meta charset>, UTF-8 validity).
// Unknown or failing encodings return the bytes unchanged.
func decodeText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	if name := xmlEncodingName(body, contentType); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(decoded)
			}
		}
		return string(body)
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// xmlEncodingName returns the XML declaration encoding when the response is
// XML and the Content-Type carries no charset parameter.
func xmlEncodingName(body []byte, contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && params["charset"] != "" {
		return ""
	}
	if err == nil && !strings.Contains(mediaType, "xml") {
		return ""
	}

	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	m := xmlDeclEncoding.FindSubmatch(head)
	if m == nil {
		return ""
	}
	name := strings.ToLower(string(m[1]))
	if name == "utf-8" || name == "utf8" {
		return ""
	}
	return name
}
