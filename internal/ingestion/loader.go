package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/rag"
)

// MaxDocumentBytes caps the size of a single loaded document.
const MaxDocumentBytes = 20 << 20

// textExtensions are accepted without sniffing the content.
var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// LoadText reads a plain-text document. name is used only for its extension:
// known text extensions are accepted directly, anything else must sniff as
// text/*. Binary formats such as PDF, invalid UTF-8 and documents with no
// text are rejected with KindInvalidInput.
func LoadText(name string, r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("ingestion: read %s: %w", name, err)
	}
	if len(body) > MaxDocumentBytes {
		return "", rag.NewError(rag.KindInvalidInput, "ingestion", nil,
			"%s exceeds %d bytes", name, MaxDocumentBytes)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !textExtensions[ext] {
		if ct := http.DetectContentType(body); !strings.HasPrefix(ct, "text/") {
			return "", rag.NewError(rag.KindInvalidInput, "ingestion", nil,
				"%s: unsupported content type %q, only plain text and markdown are accepted", name, ct)
		}
	}
	if !utf8.Valid(body) {
		return "", rag.NewError(rag.KindInvalidInput, "ingestion", nil, "%s is not valid UTF-8", name)
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", rag.NewError(rag.KindInvalidInput, "ingestion", nil, "%s contains no extractable text", name)
	}
	return text, nil
}

// Fetch downloads a text document over HTTP(S) and loads it with LoadText.
func (p *Pipeline) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingestion: http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, url)
	}

	return LoadText(req.URL.Path, resp.Body)
}
