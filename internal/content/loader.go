package content

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

const (
	spreadsheetSuffix = ".questions.xlsx"
	versionLen        = 16
)

// Loader reads study content from a filesystem tree.
//
// YAML documents contribute sections and questions in walk order (lexical
// by path). Spreadsheets named *.questions.xlsx contribute questions with
// the columns: prompt, explanation, correct option number (1-based),
// options... The first spreadsheet row is a header.
type Loader struct {
	fsys    fs.FS
	content Content
	digest  hash.Hash
}

// NewLoader creates a loader and loads all content from fsys.
func NewLoader(fsys fs.FS) (*Loader, error) {
	digest, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("creating content digest: %w", err)
	}
	l := &Loader{fsys: fsys, digest: digest}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	l.finish()

	if err := l.content.Validate(); err != nil {
		return nil, err
	}

	slog.Info("content loaded",
		"sections", len(l.content.Sections),
		"questions", len(l.content.Questions),
		"version", l.content.Version,
	)
	return l, nil
}

// Load is a shortcut for NewLoader(fsys).Content().
func Load(fsys fs.FS) (*Content, error) {
	l, err := NewLoader(fsys)
	if err != nil {
		return nil, err
	}
	return l.Content(), nil
}

// LoadDir loads content from a directory on disk.
func LoadDir(dir string) (*Content, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("content path: %w", err)
	}
	return Load(os.DirFS(dir))
}

// Content returns the loaded content.
func (l *Loader) Content() *Content {
	c := l.content
	return &c
}

func (l *Loader) loadAll() error {
	return fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(p, spreadsheetSuffix):
			return l.loadSpreadsheet(p)
		case strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml"):
			return l.loadDocument(p)
		}
		return nil
	})
}

func (l *Loader) read(p string) ([]byte, error) {
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, err
	}
	l.digest.Write([]byte(p))
	l.digest.Write(data)
	return data, nil
}

func (l *Loader) loadDocument(p string) error {
	data, err := l.read(p)
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	if raw == nil {
		return nil // empty file
	}
	if err := validateDocument(raw); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}

	if l.content.Title == "" {
		l.content.Title = doc.Title
	}
	if l.content.QuizSection == "" {
		l.content.QuizSection = doc.QuizSection
	}
	for _, s := range doc.Sections {
		for i := range s.Units {
			if s.Units[i].Kind == "" {
				s.Units[i].Kind = KindParagraph
			}
		}
		l.content.Sections = append(l.content.Sections, s)
	}
	l.content.Questions = append(l.content.Questions, doc.Questions...)
	return nil
}

func (l *Loader) loadSpreadsheet(p string) error {
	data, err := l.read(p)
	if err != nil {
		return err
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("%s: reading rows: %w", p, err)
	}

	for i, row := range rows {
		if i == 0 || isBlank(row) {
			continue
		}
		q, err := questionFromRow(row)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", path.Base(p), i+1, err)
		}
		l.content.Questions = append(l.content.Questions, q)
	}
	return nil
}

func questionFromRow(row []string) (Question, error) {
	if len(row) < 3 {
		return Question{}, fmt.Errorf("%w: expected prompt, explanation, correct and options", ErrMalformedContent)
	}
	n, err := strconv.Atoi(strings.TrimSpace(row[2]))
	if err != nil {
		return Question{}, fmt.Errorf("%w: correct option %q is not a number", ErrMalformedContent, row[2])
	}

	var options []string
	for _, cell := range row[3:] {
		options = append(options, strings.TrimSpace(cell))
	}
	for len(options) > 0 && options[len(options)-1] == "" {
		options = options[:len(options)-1]
	}

	return Question{
		Prompt:      strings.TrimSpace(row[0]),
		Explanation: strings.TrimSpace(row[1]),
		Correct:     n - 1,
		Options:     options,
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (l *Loader) finish() {
	if l.content.QuizSection == "" {
		if _, ok := l.content.Section(DefaultQuizSection); ok {
			l.content.QuizSection = DefaultQuizSection
		}
	}
	sum := hex.EncodeToString(l.digest.Sum(nil))
	l.content.Version = sum[:versionLen]
}
