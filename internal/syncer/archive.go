package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/portal"
)

const reportLayout = "20060102_150405"

// archive writes the export CSV to the download directory.
func (s *Syncer) archive(log zerolog.Logger, sum *Summary, csv []byte) {
	if s.opts.DownloadDir == "" || len(csv) == 0 {
		return
	}
	path, err := WriteReport(s.opts.DownloadDir, s.nowFunc(), csv)
	if err != nil {
		log.Warn().Err(err).Msg("could not archive export")
		return
	}
	sum.Archive = path
	log.Info().Str("path", path).Msg("export archived")
}

// WriteReport stores csv as report_<timestamp>.csv under dir.
func WriteReport(dir string, at time.Time, csv []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, "report_"+at.Format(reportLayout)+".csv")
	if err := os.WriteFile(path, csv, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// LatestReport returns the most recently modified report_*.csv in dir, or
// "" when there is none.
func LatestReport(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "report_*.csv"))
	if err != nil {
		return "", err
	}
	var latest string
	var latestMod int64
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if mod := fi.ModTime().UnixNano(); latest == "" || mod > latestMod || (mod == latestMod && m > latest) {
			latest, latestMod = m, mod
		}
	}
	return latest, nil
}

// seedIfEmpty imports the newest archived report into an empty ledger so a
// fresh table starts with history the current export window no longer
// covers.
func (s *Syncer) seedIfEmpty(ctx context.Context, log zerolog.Logger, sum *Summary) {
	if s.opts.DownloadDir == "" {
		return
	}
	empty, err := s.deps.Ledger.IsEmpty(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not check whether the ledger is empty")
		return
	}
	if !empty {
		return
	}

	path, err := LatestReport(s.opts.DownloadDir)
	if err != nil || path == "" {
		log.Debug().Err(err).Msg("no archived report to seed from")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not read archived report")
		return
	}
	rows, err := portal.ParseCSV(data)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not parse archived report")
		return
	}
	if len(rows) == 0 {
		return
	}

	log.Info().Str("path", path).Int("rows", len(rows)).Msg("seeding empty ledger from archived report")
	s.upsert(ctx, log, sum, rows)
	sum.Seeded = len(rows)
}
