package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"copbot/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const defaultPageNumber = 1

// SupportedExtensions lists the file types LoadDocument understands.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt"}

// Supported reports whether path has an extension LoadDocument can read.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadDocument reads a document into page level text records. Pages
// without any text are dropped.
func LoadDocument(filePath string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".ods":
		return parseODS(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filePath, err)
	}

	source := filepath.Base(filePath)
	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("file", source).Int("page", i).Msg("Skipping unreadable page")
			continue
		}
		pages = appendPage(pages, source, i, pageText)
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := extractTextFromXML(r.Editable().GetContent(), "w:t", "</w:p>")
	return appendPage(nil, filepath.Base(filePath), defaultPageNumber, content), nil
}

// parsePPTX returns one page per slide, numbered by the slide file name.
func parsePPTX(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pptx %s: %w", filePath, err)
	}
	defer f.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		name, ok := strings.CutPrefix(file.Name, "ppt/slides/slide")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil || !strings.HasSuffix(name, ".xml") {
			continue
		}
		slides = append(slides, slide{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	source := filepath.Base(filePath)
	var pages []models.Page
	for _, s := range slides {
		data, err := readZipFile(s.file)
		if err != nil {
			log.Warn().Err(err).Str("file", source).Int("slide", s.number).Msg("Skipping slide")
			continue
		}
		pages = appendPage(pages, source, s.number, extractTextFromXML(string(data), "a:t", "</a:p>"))
	}
	return pages, nil
}

func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := filepath.Base(filePath)
	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("file", source).Str("sheet", sheetName).Msg("Skipping sheet")
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = appendPage(pages, source, sheetNum+1, text.String())
	}
	return pages, nil
}

// parseODS reads an OpenDocument spreadsheet the same way parseXLSX
// reads a workbook: one page per sheet, cells tab separated.
func parseODS(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open ods %s: %w", filePath, err)
	}
	defer f.Close()

	var content *zip.File
	for _, file := range f.File {
		if file.Name == "content.xml" {
			content = file
			break
		}
	}
	if content == nil {
		return nil, fmt.Errorf("ods %s has no content.xml", filePath)
	}
	rc, err := content.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sheets, err := readODSSheets(rc)
	if err != nil {
		return nil, fmt.Errorf("parse ods %s: %w", filePath, err)
	}

	source := filepath.Base(filePath)
	var pages []models.Page
	for i, sh := range sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sh.name))
		for _, row := range sh.rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = appendPage(pages, source, i+1, text.String())
	}
	return pages, nil
}

type odsSheet struct {
	name string
	rows [][]string
}

// readODSSheets walks content.xml. Repeated cells are expanded only when
// they carry a value; trailing empty cells are dropped.
func readODSSheets(r io.Reader) ([]odsSheet, error) {
	dec := xml.NewDecoder(r)
	var (
		sheets  []odsSheet
		row     []string
		cell    strings.Builder
		repeat  int
		inCell  bool
		inTable bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sheets, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				inTable = true
				sheets = append(sheets, odsSheet{name: attr(t, "name")})
			case "table-row":
				row = nil
			case "table-cell", "covered-table-cell":
				inCell = true
				cell.Reset()
				repeat = 1
				if n, err := strconv.Atoi(attr(t, "number-columns-repeated")); err == nil && n > 0 {
					repeat = n
				}
			case "p":
				if inCell && cell.Len() > 0 {
					cell.WriteString(" ")
				}
			case "s":
				if inCell {
					cell.WriteString(" ")
				}
			case "tab":
				if inCell {
					cell.WriteString(" ")
				}
			}
		case xml.CharData:
			if inCell {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table":
				inTable = false
			case "table-cell", "covered-table-cell":
				inCell = false
				v := strings.TrimSpace(cell.String())
				if v == "" {
					repeat = 1
				}
				for range repeat {
					row = append(row, v)
				}
			case "table-row":
				for len(row) > 0 && row[len(row)-1] == "" {
					row = row[:len(row)-1]
				}
				if inTable && len(row) > 0 && len(sheets) > 0 {
					last := &sheets[len(sheets)-1]
					last.rows = append(last.rows, row)
				}
			}
		}
	}
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return appendPage(nil, filepath.Base(filePath), defaultPageNumber, string(data)), nil
}

func appendPage(pages []models.Page, source string, number int, text string) []models.Page {
	text = normalizeText(text)
	if text == "" {
		return pages
	}
	return append(pages, models.Page{Source: source, Number: number, Text: text})
}

// normalizeText trims every line and collapses runs of blank lines.
func normalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		blank = false
		b.WriteString(line)
	}
	return b.String()
}

// extractTextFromXML pulls the text runs of the given tag out of an
// office XML body, breaking lines at paraEnd.
func extractTextFromXML(xmlContent, tag, paraEnd string) string {
	var text strings.Builder
	for _, para := range strings.Split(xmlContent, paraEnd) {
		var line strings.Builder
		parts := strings.Split(para, "<"+tag)
		for i, part := range parts {
			if i == 0 {
				continue
			}
			// skip attributes and tags sharing the prefix (e.g. w:tab)
			open := strings.Index(part, ">")
			if open < 0 || (open > 0 && part[0] != ' ') {
				continue
			}
			endIdx := strings.Index(part, "</"+tag+">")
			if endIdx > open {
				line.WriteString(part[open+1 : endIdx])
			}
		}
		if line.Len() > 0 {
			text.WriteString(unescapeXML(line.String()))
			text.WriteString("\n")
		}
	}
	return text.String()
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
