package filter

import (
	"bytes"
	"mime"
	"strings"
)

var headerDecoder = &mime.WordDecoder{}

// encodeHeaderValue RFC 2047-encodes values that are not plain ASCII
func encodeHeaderValue(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] >= 0x80 {
			return mime.BEncoding.Encode("utf-8", v)
		}
	}
	return v
}

// decodeEncodedHeader decodes RFC 2047 encoded words, returning the input on failure
func decodeEncodedHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// splitMessage separates the header block from the body. The returned
// header lines keep their line endings; folded lines are separate entries.
// eol is the message's line ending.
func splitMessage(raw []byte) (lines [][]byte, body []byte, eol string) {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	sepLen := 4
	eol = "\r\n"
	if lf := bytes.Index(raw, []byte("\n\n")); lf >= 0 && (end < 0 || lf < end) {
		end, sepLen, eol = lf, 2, "\n"
	}
	if end < 0 {
		return nil, raw, "\r\n"
	}

	header := raw[:end+sepLen/2]
	for len(header) > 0 {
		i := bytes.IndexByte(header, '\n')
		if i < 0 {
			lines = append(lines, header)
			break
		}
		lines = append(lines, header[:i+1])
		header = header[i+1:]
	}
	return lines, raw[end+sepLen:], eol
}

func headerName(line []byte) string {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return ""
	}
	return strings.TrimSpace(string(line[:i]))
}

func isContinuation(line []byte) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// annotateMessage prepends the given headers, drops any incoming copies of
// them, and optionally prefixes the Subject. The body is kept byte for byte.
func annotateMessage(raw []byte, add [][2]string, subjectPrefix string) []byte {
	lines, body, eol := splitMessage(raw)

	replaced := make(map[string]struct{}, len(add))
	for _, h := range add {
		replaced[strings.ToLower(h[0])] = struct{}{}
	}

	var out bytes.Buffer
	out.Grow(len(raw) + 256)
	for _, h := range add {
		out.WriteString(h[0])
		out.WriteString(": ")
		out.WriteString(encodeHeaderValue(h[1]))
		out.WriteString(eol)
	}

	sawSubject := false
	skipping := false
	for _, line := range lines {
		if isContinuation(line) {
			if !skipping {
				out.Write(line)
			}
			continue
		}

		name := headerName(line)
		_, skipping = replaced[strings.ToLower(name)]
		if skipping {
			continue
		}

		if strings.EqualFold(name, "Subject") {
			sawSubject = true
			if subjectPrefix != "" {
				line = prefixSubject(line, subjectPrefix)
			}
		}
		out.Write(line)
	}
	if !sawSubject && subjectPrefix != "" {
		out.WriteString("Subject: " + encodeHeaderValue(subjectPrefix) + eol)
	}

	out.WriteString(eol)
	out.Write(body)
	return out.Bytes()
}

// prefixSubject inserts prefix after "Subject:" unless the decoded subject already starts with it
func prefixSubject(line []byte, prefix string) []byte {
	colon := bytes.IndexByte(line, ':')
	value, changed := prefixedSubject(string(line[colon+1:]), prefix)
	if !changed {
		return line
	}
	return []byte("Subject: " + value)
}

// prefixedSubject returns a Subject value carrying prefix. changed is false
// when the decoded value already starts with it.
func prefixedSubject(value, prefix string) (prefixed string, changed bool) {
	trimmed := strings.TrimLeft(value, " \t")
	if strings.HasPrefix(decodeEncodedHeader(strings.TrimSpace(trimmed)), prefix) {
		return value, false
	}
	return encodeHeaderValue(prefix) + " " + trimmed, true
}
