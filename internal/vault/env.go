package vault

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

const envHeader = "# generated by gatekeeper from an encrypted credential set; do not edit\n"

func renderEnv(rec Record) []byte {
	var b bytes.Buffer
	b.WriteString(envHeader)
	for _, f := range rec {
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(quoteEnv(formatValue(f.Value)))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// quoteEnv leaves plain values bare and quotes anything LoadEnvFile would
// otherwise misread.
func quoteEnv(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n#\"'\\=") {
		return strconv.Quote(s)
	}
	return s
}

// LoadEnvFile reads an artifact written by GenerateEnv. Blank lines and
// lines starting with '#' are ignored.
func LoadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %s:%d: expected KEY=value", common.ErrDecode, path, line)
		}
		if strings.HasPrefix(value, `"`) {
			value, err = strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", common.ErrDecode, path, line, err)
			}
		}
		out[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
