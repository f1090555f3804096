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

package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/kadirpekel/deepquest/pkg/fault"
)

// The docx library edits existing documents rather than authoring new
// ones, so exports start from a minimal in-memory package whose body
// gets replaced with the rendered report.

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
</Relationships>`

const emptyDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>placeholder</w:t></w:r></w:p></w:body>
</w:document>`

// ExportDOCX renders the report as a Word document.
func ExportDOCX(w io.Writer, title, content string) error {
	template, err := blankDocument()
	if err != nil {
		return err
	}

	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "loading document template")
	}
	defer reader.Close()

	doc := reader.Editable()
	doc.SetContent(renderDocumentXML(title, content))
	if err := doc.Write(w); err != nil {
		return fault.Wrap(fault.KindInternal, err, "writing docx export")
	}
	return nil
}

// WriteDocxFile exports the report to path.
func WriteDocxFile(path, title, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "creating %s", path)
	}
	defer f.Close()
	return ExportDOCX(f, title, content)
}

func blankDocument() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/document.xml", emptyDocumentXML},
	}
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "building document template")
		}
		if _, err := fw.Write([]byte(f.body)); err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "building document template")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "building document template")
	}
	return buf.Bytes(), nil
}

// renderDocumentXML converts the Markdown-ish report into
// WordprocessingML. Headings map to heading paragraph styles, blank
// lines split paragraphs, everything else is body text.
func renderDocumentXML(title, content string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if title != "" {
		writeParagraph(&b, "Title", title)
	}
	for _, block := range strings.Split(content, "\n") {
		line := strings.TrimRight(block, " \t")
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "### "):
			writeParagraph(&b, "Heading3", strings.TrimPrefix(line, "### "))
		case strings.HasPrefix(line, "## "):
			writeParagraph(&b, "Heading2", strings.TrimPrefix(line, "## "))
		case strings.HasPrefix(line, "# "):
			writeParagraph(&b, "Heading1", strings.TrimPrefix(line, "# "))
		case strings.HasPrefix(line, "- "):
			writeParagraph(&b, "ListParagraph", strings.TrimPrefix(line, "- "))
		default:
			writeParagraph(&b, "", line)
		}
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeParagraph(b *strings.Builder, style, text string) {
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	b.WriteString(`<w:r><w:t xml:space="preserve">`)
	xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r></w:p>")
}
