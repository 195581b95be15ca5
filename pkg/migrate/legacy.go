// Package migrate imports bridges from the single-table database used by
// earlier deployments of the bot.
//
// The legacy table stored one directional row per link with no uniqueness:
//
//	bridges(source_channel_id INTEGER, target_channel_id INTEGER)
//
// so the same pair can appear several times and in both orientations. Rows are
// canonicalized on import; self-links, duplicates and invalid IDs are counted
// and skipped.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

// Options controls a legacy import.
type Options struct {
	LegacyPath string // path to the old bridges.db
	DryRun     bool
}

// Result summarizes the import.
type Result struct {
	Rows       int
	Imported   int
	Duplicates int
	SelfLinks  int
	Invalid    int
	DryRun     bool
}

// Registry is where imported bridges go.
type Registry interface {
	CreateBridge(ctx context.Context, a, b bridge.ChannelID) (bridge.Bridge, error)
	ListBridges(ctx context.Context) ([]bridge.Bridge, error)
}

type legacyRow struct {
	source sql.NullInt64
	target sql.NullInt64
}

// Run imports every legacy row into reg. With DryRun nothing is written, and
// the counts describe what a real run would do.
func Run(ctx context.Context, opts Options, reg Registry) (*Result, error) {
	if opts.LegacyPath == "" {
		return nil, errors.New("legacy database path is required")
	}
	if _, err := os.Stat(opts.LegacyPath); err != nil {
		return nil, fmt.Errorf("legacy database not found: %w", err)
	}

	rows, err := readLegacy(ctx, opts.LegacyPath)
	if err != nil {
		return nil, err
	}

	existing, err := reg.ListBridges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing existing bridges: %w", err)
	}
	seen := make(map[[2]bridge.ChannelID]struct{}, len(existing)+len(rows))
	for _, b := range existing {
		seen[b.Key()] = struct{}{}
	}

	result := &Result{Rows: len(rows), DryRun: opts.DryRun}
	for _, row := range rows {
		if !row.source.Valid || !row.target.Valid || row.source.Int64 <= 0 || row.target.Int64 <= 0 {
			result.Invalid++
			continue
		}
		a, b := bridge.ChannelID(row.source.Int64), bridge.ChannelID(row.target.Int64)
		if a == b {
			result.SelfLinks++
			continue
		}
		key := bridge.NewBridge(a, b).Key()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if opts.DryRun {
			result.Imported++
			continue
		}
		_, err := reg.CreateBridge(ctx, a, b)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, bridge.ErrDuplicateBridge):
			result.Duplicates++
		default:
			return result, fmt.Errorf("importing %s: %w", bridge.NewBridge(a, b), err)
		}
	}

	logger.InfoCF("migrate", "Legacy import finished", map[string]any{
		"rows":       result.Rows,
		"imported":   result.Imported,
		"duplicates": result.Duplicates,
		"self_links": result.SelfLinks,
		"invalid":    result.Invalid,
		"dry_run":    result.DryRun,
	})
	return result, nil
}

func readLegacy(ctx context.Context, path string) ([]legacyRow, error) {
	db, err := sql.Open("sqlite", "file:"+filepath.Clean(path)+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open legacy db: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT source_channel_id, target_channel_id FROM bridges`)
	if err != nil {
		return nil, fmt.Errorf("read legacy bridges: %w", err)
	}
	defer rows.Close()

	var out []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.source, &r.target); err != nil {
			return nil, fmt.Errorf("scan legacy row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PrintSummary writes a human-readable report of result to w.
func PrintSummary(w io.Writer, result *Result) {
	if result.DryRun {
		fmt.Fprintln(w, "Dry run: no changes were made.")
		fmt.Fprintf(w, "  Would import: %d\n", result.Imported)
	} else {
		fmt.Fprintf(w, "  Imported:     %d\n", result.Imported)
	}
	fmt.Fprintf(w, "  Rows read:    %d\n", result.Rows)
	fmt.Fprintf(w, "  Duplicates:   %d\n", result.Duplicates)
	fmt.Fprintf(w, "  Self-links:   %d\n", result.SelfLinks)
	if result.Invalid > 0 {
		fmt.Fprintf(w, "  Invalid rows: %d\n", result.Invalid)
	}
}
