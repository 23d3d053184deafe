package cookies

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const fileHeader = "# Netscape HTTP Cookie File\n# This file was generated by reqflow\n\n"

const httpOnlyPrefix = "#HttpOnly_"

// LoadFile seeds a jar from a Netscape-format cookie file. A missing file is
// not an error: the jar starts empty.
func LoadFile(path string) (*Jar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewJar(), nil
		}
		return nil, fmt.Errorf("reading cookie file: %w", err)
	}
	defer f.Close()

	jar := NewJar()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookie file %s line %d: expected 7 tab-separated fields, got %d", path, lineNo, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cookie file %s line %d: invalid expiry %q", path, lineNo, fields[4])
		}
		jar.Set(Cookie{
			Domain:            strings.ToLower(strings.TrimPrefix(fields[0], ".")),
			IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
			Path:              fields[2],
			Secure:            strings.EqualFold(fields[3], "TRUE"),
			Expires:           expires,
			Name:              fields[5],
			Value:             fields[6],
			HTTPOnly:          httpOnly,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cookie file: %w", err)
	}
	return jar, nil
}

// WriteFile persists the jar in Netscape format, one line per cookie.
func (j *Jar) WriteFile(path string) error {
	var b strings.Builder
	b.WriteString(fileHeader)
	for _, c := range j.All() {
		if c.HTTPOnly {
			b.WriteString(httpOnlyPrefix)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain,
			upperBool(c.IncludeSubdomains),
			c.Path,
			upperBool(c.Secure),
			c.Expires,
			c.Name,
			c.Value,
		)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func upperBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
