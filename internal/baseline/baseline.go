package baseline

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ejagojo/VibeScan/internal/scanner"
)

// FileName is the baseline file kept at the root of a scanned directory.
const FileName = ".vibescan_baseline.json"

// ErrDuplicate is returned when a finding is already suppressed.
var ErrDuplicate = errors.New("finding already in baseline")

// Baseline represents the suppression file
type Baseline struct {
	Version   string    `json:"version"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Findings  []Finding `json:"findings"`

	root  string
	index map[string]struct{}
}

// Finding represents a suppressed finding. Path is relative to the
// baseline directory, slash separated.
type Finding struct {
	RuleID      string `json:"ruleId"`
	Path        string `json:"path"`
	Line        int    `json:"line"`
	Fingerprint string `json:"fingerprint"`
}

// Load loads the baseline file from the given directory. A missing file
// yields an empty baseline rooted at dir.
func Load(dir string) (*Baseline, error) {
	b := &Baseline{
		Version:   "1.0",
		CreatedBy: "vibescan",
		CreatedAt: time.Now().UTC(),
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read baseline file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, b); err != nil {
			return nil, fmt.Errorf("failed to parse baseline file: %w", err)
		}
	}

	b.root = dir
	b.reindex()
	return b, nil
}

// Path is where Save writes the baseline.
func (b *Baseline) Path() string {
	return filepath.Join(b.root, FileName)
}

// Save writes the baseline back to its directory
func (b *Baseline) Save() error {
	sort.SliceStable(b.Findings, func(i, j int) bool {
		if b.Findings[i].Path != b.Findings[j].Path {
			return b.Findings[i].Path < b.Findings[j].Path
		}
		if b.Findings[i].Line != b.Findings[j].Line {
			return b.Findings[i].Line < b.Findings[j].Line
		}
		return b.Findings[i].RuleID < b.Findings[j].RuleID
	})

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := os.WriteFile(b.Path(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write baseline file: %w", err)
	}
	return nil
}

// Add adds a finding to the baseline
func (b *Baseline) Add(finding scanner.Finding) error {
	rel := b.relative(finding.Path)
	fp := Fingerprint(finding.RuleID, rel, finding.Line)
	if _, ok := b.index[fp]; ok {
		return fmt.Errorf("%s at %s:%d: %w", finding.RuleID, rel, finding.Line, ErrDuplicate)
	}

	b.Findings = append(b.Findings, Finding{
		RuleID:      finding.RuleID,
		Path:        rel,
		Line:        finding.Line,
		Fingerprint: fp,
	})
	b.index[fp] = struct{}{}
	return nil
}

// IsSuppressed checks if a finding is suppressed in the baseline. It only
// reads and is safe to call from concurrent scan workers once loading and
// adding are done.
func (b *Baseline) IsSuppressed(finding scanner.Finding) bool {
	if len(b.index) == 0 {
		return false
	}
	_, ok := b.index[Fingerprint(finding.RuleID, b.relative(finding.Path), finding.Line)]
	return ok
}

// Len is the number of suppressed findings.
func (b *Baseline) Len() int { return len(b.Findings) }

// reindex rebuilds the lookup from stored entries. Fingerprints are
// recomputed so hand-edited files stay consistent.
func (b *Baseline) reindex() {
	b.index = make(map[string]struct{}, len(b.Findings))
	for i := range b.Findings {
		f := &b.Findings[i]
		f.Path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(f.Path)))
		f.Fingerprint = Fingerprint(f.RuleID, f.Path, f.Line)
		b.index[f.Fingerprint] = struct{}{}
	}
}

// relative maps a finding path to the slash form stored in the baseline.
func (b *Baseline) relative(path string) string {
	clean := filepath.Clean(path)
	if absRoot, err := filepath.Abs(b.root); err == nil {
		if absPath, err := filepath.Abs(clean); err == nil {
			if rel, err := filepath.Rel(absRoot, absPath); err == nil && !startsWithParent(rel) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.ToSlash(clean)
}

func startsWithParent(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// Fingerprint identifies a finding by rule, path and line.
func Fingerprint(ruleID, path string, line int) string {
	sum := sha256.Sum256([]byte(ruleID + "|" + path + "|" + strconv.Itoa(line)))
	return fmt.Sprintf("%x", sum)
}
