// Package merge combines two independently recorded survey sessions into a
// fresh output session: audio notes are copied by date folder, dynamic event
// tables are deduplicated on dateTime+attributes, GPS tracks are thinned to
// one point per minute, and static reference tables are taken from source A
// alone. The merge is not transactional: a failure aborts the remaining
// steps and leaves whatever was already committed.
package merge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pelagis-survey/pelagis/internal/store"
)

// Options controls one merge run.
type Options struct {
	// CutoffDate restricts participating records to date(dateTime) >=
	// cutoff, inclusive of the cutoff day. Nil merges everything. Audio
	// folders are filtered by their YYYYMMDD name against the same day.
	CutoffDate *time.Time

	// IncludeGPSA / IncludeGPSB independently enable each source's GPS
	// track.
	IncludeGPSA bool
	IncludeGPSB bool

	// Progress, when set, receives whole-percent completion updates.
	Progress func(percent int)
}

// Merger merges sessions A and B into out. The sources must not be open for
// editing elsewhere for the duration; the output belongs to the merger until
// Run returns.
type Merger struct {
	a, b, out *store.Session
	opts      Options
	log       *zap.Logger

	total   int
	done    int
	lastPct int
}

// New builds a merger. log may be nil.
func New(log *zap.Logger, a, b, out *store.Session, opts Options) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{a: a, b: b, out: out, opts: opts, log: log, lastPct: -1}
}

// Run executes the merge in its fixed order: audio, dynamic tables, GPS,
// static tables. Any failure is surfaced as a single wrapped error; partial
// writes already committed remain in the output session.
func (m *Merger) Run(ctx context.Context) error {
	if err := m.run(ctx); err != nil {
		m.log.Error("session merge failed", zap.Error(err))
		return fmt.Errorf("merging sessions: %w", err)
	}
	m.report(100)
	m.log.Info("session merge complete", zap.String("output", m.out.Dir))
	return nil
}

func (m *Merger) run(ctx context.Context) error {
	if err := m.countWork(); err != nil {
		return err
	}

	for _, src := range []*store.Session{m.a, m.b} {
		if err := m.copyAudio(ctx, src); err != nil {
			return err
		}
	}

	for _, table := range store.DynamicTables {
		if err := m.mergeDynamic(ctx, table); err != nil {
			return err
		}
	}

	if err := m.mergeGPS(ctx); err != nil {
		return err
	}

	return m.copyStatic(ctx)
}

// countWork sizes the progress denominator: one unit per candidate record
// plus one per audio folder and static table.
func (m *Merger) countWork() error {
	filter, args := m.cutoffFilter()
	total := len(store.StaticTables)

	for _, src := range []*store.Session{m.a, m.b} {
		for _, table := range store.DynamicTables {
			n, err := src.Table(table).Count(filter, args...)
			if err != nil {
				return err
			}
			total += n
		}
		dirs, err := m.audioFolders(src)
		if err != nil {
			return err
		}
		total += len(dirs)
	}
	for _, enabled := range []struct {
		on  bool
		src *store.Session
	}{{m.opts.IncludeGPSA, m.a}, {m.opts.IncludeGPSB, m.b}} {
		if !enabled.on {
			continue
		}
		n, err := enabled.src.Table(store.GPSTable).Count(filter, args...)
		if err != nil {
			return err
		}
		total += n
	}
	if total == 0 {
		total = 1
	}
	m.total = total
	return nil
}

// copyAudio copies each eligible date folder's files into the matching
// output folder, overwriting same-named files.
func (m *Merger) copyAudio(ctx context.Context, src *store.Session) error {
	dirs, err := m.audioFolders(src)
	if err != nil {
		return err
	}
	for _, day := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		srcDir := filepath.Join(src.AudioDir(), day)
		dstDir := filepath.Join(m.out.AudioDir(), day)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("creating audio folder %s: %w", dstDir, err)
		}
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return fmt.Errorf("reading audio folder %s: %w", srcDir, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if err := copyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
				return err
			}
		}
		m.step()
	}
	return nil
}

// audioFolders lists the date-named subfolders of a source's audio root
// that pass the cutoff (numeric YYYYMMDD comparison, inclusive).
func (m *Merger) audioFolders(src *store.Session) ([]string, error) {
	entries, err := os.ReadDir(src.AudioDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading audio root of %s: %w", src.Dir, err)
	}

	cutoff := 0
	if m.opts.CutoffDate != nil {
		cutoff, _ = strconv.Atoi(m.opts.CutoffDate.Format("20060102"))
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if cutoff > 0 {
			day, err := strconv.Atoi(e.Name())
			if err != nil || day < cutoff {
				continue
			}
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// mergeDynamic merges one event table, source A then source B, deduplicating
// on the identity key (formatted dateTime plus every non-fid attribute) and
// renumbering fids from one shared, incrementally tracked counter.
func (m *Merger) mergeDynamic(ctx context.Context, table string) error {
	outTab := m.out.Table(table)
	existing, err := outTab.Features("", "")
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		seen[rec.IdentityKey()] = true
	}
	nextFID, err := outTab.MaxFID()
	if err != nil {
		return err
	}

	filter, args := m.cutoffFilter()
	added := 0
	for _, src := range []*store.Session{m.a, m.b} {
		rows, err := src.Table(table).Features(filter, "", args...)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.step()
			key := rec.IdentityKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			nextFID++
			rec.FID = nextFID
			if _, err := outTab.AddFeature(rec); err != nil {
				return err
			}
			added++
		}
	}
	m.log.Info("merged table", zap.String("table", table), zap.Int("added", added))
	return nil
}

// mergeGPS merges the enabled sources' tracks, keeping at most one point per
// minute across output and both sources.
func (m *Merger) mergeGPS(ctx context.Context) error {
	outTab := m.out.Table(store.GPSTable)
	existing, err := outTab.Features("", "")
	if err != nil {
		return err
	}
	minutes := make(map[string]bool, len(existing))
	for _, rec := range existing {
		minutes[minuteBucket(rec)] = true
	}
	nextFID, err := outTab.MaxFID()
	if err != nil {
		return err
	}

	filter, args := m.cutoffFilter()
	added := 0
	for _, source := range []struct {
		on  bool
		src *store.Session
	}{{m.opts.IncludeGPSA, m.a}, {m.opts.IncludeGPSB, m.b}} {
		if !source.on {
			continue
		}
		rows, err := source.src.Table(store.GPSTable).Features(filter, "", args...)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.step()
			bucket := minuteBucket(rec)
			if minutes[bucket] {
				continue
			}
			minutes[bucket] = true
			nextFID++
			rec.FID = nextFID
			if _, err := outTab.AddFeature(rec); err != nil {
				return err
			}
			added++
		}
	}
	m.log.Info("merged gps track", zap.Int("added", added))
	return nil
}

// copyStatic copies the reference tables verbatim from source A, and only
// into output tables that are still empty. Source B's reference data is
// assumed identical and never consulted.
func (m *Merger) copyStatic(ctx context.Context) error {
	for _, table := range store.StaticTables {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.step()
		outTab := m.out.Table(table)
		empty, err := outTab.IsEmpty()
		if err != nil {
			return err
		}
		if !empty {
			continue
		}
		rows, err := m.a.Table(table).Features("", "")
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if _, err := outTab.AddFeature(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Merger) cutoffFilter() (string, []any) {
	if m.opts.CutoffDate == nil {
		return "", nil
	}
	return "date(date_time) >= ?", []any{m.opts.CutoffDate.Format("2006-01-02")}
}

func (m *Merger) step() {
	m.done++
	if m.total <= 0 {
		return
	}
	pct := m.done * 100 / m.total
	if pct > 100 {
		pct = 100
	}
	m.report(pct)
}

func (m *Merger) report(pct int) {
	if pct == m.lastPct {
		return
	}
	m.lastPct = pct
	if m.opts.Progress != nil {
		m.opts.Progress(pct)
	}
}

// minuteBucket truncates a GPS record's timestamp to the minute.
func minuteBucket(rec store.Record) string {
	raw := rec.Attrs["date_time"].String
	ts, err := time.Parse(store.TimeLayout, raw)
	if err != nil {
		if len(raw) >= 16 {
			return raw[:16]
		}
		return raw
	}
	return ts.Format("2006-01-02 15:04")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
