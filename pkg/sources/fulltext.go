// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sources

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/httpclient"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// maxPDFBytes caps how much of an open-access PDF is downloaded.
const maxPDFBytes = 20 << 20

// maxFullTextChars caps the extracted text kept on a record.
const maxFullTextChars = 200_000

// FullTextEnricher upgrades open-access records that carry a PDF link
// to full-text availability by downloading and extracting the PDF.
type FullTextEnricher struct {
	http *httpclient.Client
}

// NewFullTextEnricher creates an enricher with a polite User-Agent.
func NewFullTextEnricher(contact string) *FullTextEnricher {
	ua := "deepquest/0.1"
	if contact != "" {
		ua = "deepquest/0.1 (" + contact + ")"
	}
	return &FullTextEnricher{http: httpclient.New(httpclient.WithUserAgent(ua))}
}

// Enrich fetches the record's PDF and attaches extracted text, raising
// availability to WithFullText. Records without an open-access PDF link
// are returned unchanged. Extraction failures are logged, never fatal.
func (e *FullTextEnricher) Enrich(ctx context.Context, p *paper.Paper) error {
	if p.PDFURL == "" || !p.OpenAccess || p.Availability >= paper.WithFullText {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.PDFURL, nil)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "pdf request for %s", p.ID)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindNetwork, err, "pdf fetch for %s", p.ID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fault.FromStatus(resp.StatusCode, "pdf host")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return fault.Wrap(fault.KindNetwork, err, "pdf read for %s", p.ID)
	}

	text, err := extractPDFText(raw)
	if err != nil {
		slog.Debug("pdf extraction failed", "paper", p.ID, "error", err)
		return fault.Wrap(fault.KindTransient, err, "pdf extraction for %s", p.ID)
	}
	if text == "" {
		return nil
	}

	if len(text) > maxFullTextChars {
		text = text[:maxFullTextChars]
	}
	p.FullText = text
	p.Availability = paper.WithFullText
	return nil
}

func extractPDFText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
		if b.Len() > maxFullTextChars {
			break
		}
	}
	return strings.TrimSpace(b.String()), nil
}
