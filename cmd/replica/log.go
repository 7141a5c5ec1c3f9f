package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "history",
	Short:   "List oplog bundles across every known actor",
	Long: `List oplog bundles, newest first, merged across every actor this
replica has ever seen (including bundles ingested from peers).

--since accepts a natural-language time expression ("2 hours ago",
"yesterday", "2026-07-01") as well as RFC3339 timestamps.`,
	Run: func(cmd *cobra.Command, _ []string) {
		sinceRaw, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		var sinceHLC [12]byte
		if sinceRaw != "" {
			t, err := parseSince(sinceRaw)
			if err != nil {
				fatalf("--since: %v", err)
			}
			sinceHLC = hlc.HLC{WallMS: uint64(t.UnixMilli())}.Bytes()
		}

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		vc, err := eng.GetVectorClock(rootCtx)
		if err != nil {
			fatalf("read vector clock: %v", err)
		}

		var bundles []*ops.Bundle
		for _, entry := range vc.Entries() {
			got, err := eng.GetOpsByActorAfter(rootCtx, entry.Actor, sinceHLC)
			if err != nil {
				fatalf("list bundles for %s: %v", entry.Actor, err)
			}
			bundles = append(bundles, got...)
		}

		sort.Slice(bundles, func(i, j int) bool {
			return bundles[j].HLC.Less(bundles[i].HLC) // newest first
		})

		if limit > 0 && len(bundles) > limit {
			bundles = bundles[:limit]
		}

		for _, b := range bundles {
			printBundle(b)
		}
	},
}

func init() {
	logCmd.Flags().String("since", "", "only show bundles after this time")
	logCmd.Flags().Int("limit", 50, "maximum number of bundles to show (0 = unlimited)")
}

// parseSince resolves a natural-language or RFC3339 time expression
// relative to now.
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(common.All...)
	w.Add(en.All...)

	r, err := w.Parse(raw, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse %q: %w", raw, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand %q as a time", raw)
	}
	return r.Time, nil
}

func printBundle(b *ops.Bundle) {
	ts := time.UnixMilli(int64(b.HLC.WallMS)).Format(time.RFC3339)
	if jsonOutput {
		fmt.Printf(`{"bundle_id":%q,"actor_id":%q,"hlc":%q,"ops":%d}`+"\n",
			b.BundleID.String(), b.ActorID.String(), ts, len(b.Operations))
		return
	}
	fmt.Printf("%s  %s\n", bundleHeaderStyle.Render(ts), mutedStyle.Render(b.BundleID.String()+" actor="+b.ActorID.String()))
	for _, op := range b.Operations {
		fmt.Printf("    %-16s %s\n", op.Payload.Kind, describeOp(op))
	}
}

// describeOp renders a short, human-readable summary of one operation's
// payload for log output.
func describeOp(op *ops.Operation) string {
	p := op.Payload
	switch p.Kind {
	case ops.KindSetField:
		return fmt.Sprintf("%s.%s = %s", p.EntityID, p.FieldKey, formatValue(p.Value))
	case ops.KindClearField:
		return fmt.Sprintf("%s.%s", p.EntityID, p.FieldKey)
	case ops.KindCreateEntity:
		return p.EntityID.String()
	case ops.KindDeleteEntity:
		return p.EntityID.String()
	case ops.KindResolveConflict:
		return fmt.Sprintf("%s.%s -> %s", p.EntityID, p.FieldKey, formatValue(p.Value))
	default:
		return ""
	}
}

// formatValue renders a fieldvalue.Value for CLI display.
func formatValue(v fieldvalue.Value) string {
	switch v.Kind {
	case fieldvalue.KindNull:
		return "<null>"
	case fieldvalue.KindText:
		return v.Text
	case fieldvalue.KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case fieldvalue.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case fieldvalue.KindBoolean:
		return fmt.Sprintf("%t", v.Boolean)
	case fieldvalue.KindTimestamp:
		return time.UnixMilli(v.Timestamp).Format(time.RFC3339)
	case fieldvalue.KindEntityRef:
		return v.EntityRef.String()
	case fieldvalue.KindBlobRef:
		return v.BlobRef.String()
	case fieldvalue.KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	default:
		return "<unknown>"
	}
}
