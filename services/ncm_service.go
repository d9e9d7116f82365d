package services

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NCMEntry is one row of the NCM classification table. The table ships
// with Portuguese field names.
type NCMEntry struct {
	Codigo    string `json:"Codigo"`
	Descricao string `json:"Descricao"`
}

// NCMResult pairs a code with its cleaned description.
type NCMResult struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

const ncmSearchLimit = 50

// The source table carries broken Latin-1 sequences; map the known ones
// back to their accented characters.
var ncmDescriptionCleaner = strings.NewReplacer(
	"AA�", "ão",
	"A�", "ã",
	"A-", "í",
	"Ac", "é",
	"A3", "ó",
	"A'", "ô",
	"A1", "á",
	"Aç", "ê",
	"AO", "ú",
	"A2", "â",
)

// NCMService resolves NCM fiscal classification codes to descriptions.
// The table is loaded once and served from memory.
type NCMService struct {
	table map[string]string
}

// NewNCMService loads the NCM table from a JSON file on disk.
func NewNCMService(path string) (*NCMService, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NCM table: %w", err)
	}

	var entries []NCMEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse NCM table: %w", err)
	}

	table := make(map[string]string, len(entries))
	for _, entry := range entries {
		table[entry.Codigo] = entry.Descricao
	}

	logrus.WithFields(logrus.Fields{
		"component": "NCMService",
		"entries":   len(table),
	}).Info("Loaded NCM table")

	return &NCMService{table: table}, nil
}

// NewNCMServiceWithTable creates a service over an in-memory table.
func NewNCMServiceWithTable(table map[string]string) *NCMService {
	return &NCMService{table: table}
}

// Size returns the number of loaded entries.
func (s *NCMService) Size() int {
	return len(s.table)
}

// Describe resolves an NCM code to its description. When the exact code
// is absent the code is progressively truncated toward its parent
// category ("1234.56.78" falls back through "1234.56.7" to "1234.56").
// An unresolvable code is returned as-is.
func (s *NCMService) Describe(code string) string {
	if description, ok := s.table[code]; ok {
		return CleanNCMDescription(description)
	}

	current := code
	for current != "" {
		if description, ok := s.table[current]; ok {
			return CleanNCMDescription(description)
		}
		current = truncateNCMCode(current)
	}

	return code
}

// truncateNCMCode removes the least significant part of a code: a
// trailing zero first, then the last digit of the final dot segment,
// then the segment itself.
func truncateNCMCode(code string) string {
	switch {
	case strings.HasSuffix(code, "0") && len(code) > 1:
		return code[:len(code)-1]
	case strings.Contains(code, "."):
		lastDot := strings.LastIndex(code, ".")
		if lastDot <= 0 {
			return ""
		}
		beforeDot := code[:lastDot]
		afterDot := code[lastDot+1:]
		if len(afterDot) > 1 {
			return beforeDot + "." + afterDot[:len(afterDot)-1]
		}
		return beforeDot
	default:
		return code[:len(code)-1]
	}
}

// Search matches the query against codes and cleaned descriptions,
// case-insensitively, capped for performance.
func (s *NCMService) Search(query string) []NCMResult {
	lowered := strings.ToLower(query)
	results := make([]NCMResult, 0, ncmSearchLimit)

	for code, description := range s.table {
		cleaned := CleanNCMDescription(description)
		if strings.Contains(strings.ToLower(code), lowered) ||
			strings.Contains(strings.ToLower(cleaned), lowered) {
			results = append(results, NCMResult{Code: code, Description: cleaned})
			if len(results) >= ncmSearchLimit {
				break
			}
		}
	}

	return results
}

// CleanNCMDescription repairs the table's broken accent sequences and
// trims whitespace.
func CleanNCMDescription(description string) string {
	return strings.TrimSpace(ncmDescriptionCleaner.Replace(description))
}
