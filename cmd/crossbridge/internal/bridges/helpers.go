package bridges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal"
	"github.com/tinyland-inc/crossbridge/pkg/bridge"
)

func openRegistry() (*bridge.Registry, func(), error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	reg, st, err := internal.OpenRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	return reg, func() { _ = st.Close() }, nil
}

func listCmd(ctx context.Context, w io.Writer, asJSON bool) error {
	reg, closeFn, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeFn()

	all, err := reg.ListBridges(ctx)
	if err != nil {
		return err
	}
	return printBridges(w, all, asJSON)
}

func printBridges(w io.Writer, all []bridge.Bridge, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if all == nil {
			all = []bridge.Bridge{}
		}
		return enc.Encode(all)
	}
	if len(all) == 0 {
		fmt.Fprintln(w, "No bridges configured.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tCHANNEL\tCREATED")
	for _, b := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Low, b.High, b.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func parsePair(a, b string) (bridge.ChannelID, bridge.ChannelID, error) {
	first, err := bridge.ParseChannelID(a)
	if err != nil {
		return 0, 0, err
	}
	second, err := bridge.ParseChannelID(b)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func linkCmd(ctx context.Context, w io.Writer, a, b string) error {
	first, second, err := parsePair(a, b)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeFn()

	created, err := reg.CreateBridge(ctx, first, second)
	switch {
	case err == nil:
		fmt.Fprintf(w, "✓ Bridged %s\n", created)
		return nil
	case errors.Is(err, bridge.ErrSelfLink):
		return errors.New("a channel cannot be bridged to itself")
	case errors.Is(err, bridge.ErrDuplicateBridge):
		return fmt.Errorf("channels %s and %s are already bridged", first, second)
	default:
		return err
	}
}

func unlinkCmd(ctx context.Context, w io.Writer, a, b string) error {
	first, second, err := parsePair(a, b)
	if err != nil {
		return err
	}
	reg, closeFn, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeFn()

	removed, err := reg.RemoveBridge(ctx, first, second)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintf(w, "✓ Removed bridge %s\n", bridge.NewBridge(first, second))
	} else {
		fmt.Fprintf(w, "No bridge between %s and %s\n", first, second)
	}
	return nil
}
