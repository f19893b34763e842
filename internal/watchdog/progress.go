package watchdog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atlashq/atlas/internal/watchdog/types"
	"github.com/atlashq/atlas/pkg/logging"
)

const (
	// One indicator saturates at 100 new rows or 10 new files.
	rowsForFullScore  = 100.0
	filesForFullScore = 10.0

	// Score reported when no indicator yields data.
	neutralScore = 0.5
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ProgressScorer measures observable output (DB rows, files) produced by
// a monitored process since it started.
type ProgressScorer struct {
	logger logging.Logger
}

func NewProgressScorer(logger logging.Logger) *ProgressScorer {
	return &ProgressScorer{logger: logger}
}

// Score averages the normalized counts of all indicators for a job.
// Indicators that cannot be read are skipped; when nothing measurable
// remains the score is neutral so a process is never killed for missing
// data alone.
func (s *ProgressScorer) Score(jobName string, indicators []types.ProgressIndicator, since time.Time) float64 {
	if len(indicators) == 0 {
		return neutralScore
	}

	total := 0.0
	measured := 0
	for _, ind := range indicators {
		score, err := s.scoreIndicator(ind, since)
		if err != nil {
			s.logger.Warnf("[ProgressScorer] skipping %s indicator for job %s: %v", ind.Kind, jobName, err)
			continue
		}
		total += score
		measured++
	}

	if measured == 0 {
		return neutralScore
	}
	return total / float64(measured)
}

func (s *ProgressScorer) scoreIndicator(ind types.ProgressIndicator, since time.Time) (float64, error) {
	switch ind.Kind {
	case types.IndicatorDatabase:
		rows, err := s.countRowsSince(ind.Database, since)
		if err != nil {
			return 0, err
		}
		return clamp(float64(rows) / rowsForFullScore), nil
	case types.IndicatorFileGlob:
		files, err := countFilesSince(ind.FileGlob, since)
		if err != nil {
			return 0, err
		}
		return clamp(float64(files) / filesForFullScore), nil
	default:
		return 0, fmt.Errorf("unknown indicator kind %q", ind.Kind)
	}
}

func (s *ProgressScorer) countRowsSince(ind *types.DatabaseIndicator, since time.Time) (int, error) {
	if !identifierPattern.MatchString(ind.Table) {
		return 0, fmt.Errorf("invalid table name %q", ind.Table)
	}
	if _, err := os.Stat(ind.Path); err != nil {
		return 0, fmt.Errorf("indicator database unavailable: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=2000", ind.Path))
	if err != nil {
		return 0, err
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE created_at >= ?", ind.Table)
	if ind.Filter != "" {
		query += " AND " + ind.Filter
	}

	var count int
	if err := db.QueryRow(query, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", ind.Table, err)
	}
	return count, nil
}

func countFilesSince(ind *types.FileGlobIndicator, since time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(ind.Directory, ind.Pattern))
	if err != nil {
		return 0, fmt.Errorf("invalid glob pattern %q: %w", ind.Pattern, err)
	}

	count := 0
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if info.ModTime().After(since) {
			count++
		}
	}
	return count, nil
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
