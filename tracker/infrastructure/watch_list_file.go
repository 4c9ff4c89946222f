package infrastructure

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

type watchListDocument struct {
	EPCList []string `json:"epc_list"`
}

// ParseWatchList reads a watch list in either of two forms: a JSON object
// {"epc_list": [...]}, or plain text with one EPC per line where blank lines
// and lines starting with # are ignored. Entries are not validated here.
func ParseWatchList(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var doc watchListDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: watch list: %w", trackerDomain.ErrConfiguration, err)
		}
		return doc.EPCList, nil
	}

	var epcs []string
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		epcs = append(epcs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: watch list: %w", trackerDomain.ErrConfiguration, err)
	}
	return epcs, nil
}

// LoadWatchListFile reads a watch list file.
func LoadWatchListFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", trackerDomain.ErrConfiguration, err)
	}
	return ParseWatchList(data)
}
