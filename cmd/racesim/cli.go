package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/racedqn/autopilot/internal/agent"
	"github.com/racedqn/autopilot/internal/database"
	gormstorage "github.com/racedqn/autopilot/internal/storage/gorm"
	"github.com/racedqn/autopilot/internal/storage/memory"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/samber/lo"
)

var errUsage = errors.New(`usage:
  racesim                              run the training loop
  racesim inspect <export.json[.gz]>   summarize a replay export
  racesim dump <file.db> <session> [limit]
                                       print stored transitions as JSON lines
  racesim version`)

func runCommand(args []string) error {
	switch strings.ToLower(args[0]) {
	case "inspect":
		if len(args) < 2 {
			return errUsage
		}
		for _, path := range args[1:] {
			export, err := memory.ReadExport(path)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, path, export)
		}
		return nil
	case "dump":
		if len(args) < 3 {
			return errUsage
		}
		limit := 100
		if len(args) > 3 {
			n, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[3], err)
			}
			limit = n
		}
		return dumpTransitions(os.Stdout, args[1], args[2], limit)
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return nil
	}
	return errUsage
}

// ReplaySummary aggregates a batch of stored transitions.
type ReplaySummary struct {
	Count      int
	Terminal   int
	MeanReward float64
	Actions    map[int]int
}

func summarize(records []core.ReplayRecord) ReplaySummary {
	s := ReplaySummary{
		Count: len(records),
		Terminal: lo.CountBy(records, func(r core.ReplayRecord) bool {
			return r.Done
		}),
		Actions: lo.CountValuesBy(records, func(r core.ReplayRecord) int {
			return r.Action
		}),
	}
	if len(records) > 0 {
		total := lo.SumBy(records, func(r core.ReplayRecord) float64 {
			return float64(r.Reward)
		})
		s.MeanReward = total / float64(len(records))
	}
	return s
}

func printSummary(w io.Writer, path string, export memory.ReplayExport) {
	s := summarize(export.Transitions)
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  session:     %s (%s)\n", export.SessionID, export.SceneName)
	fmt.Fprintf(w, "  started:     %s\n", export.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  transitions: %d (%d terminal)\n", s.Count, s.Terminal)
	fmt.Fprintf(w, "  mean reward: %.4f\n", s.MeanReward)
	for a := 0; a < agent.NumActions; a++ {
		if n := s.Actions[a]; n > 0 {
			fmt.Fprintf(w, "  action %d:    %d\n", a, n)
		}
	}
}

// dumpTransitions reads a SQLite dump written by the sqlite backend.
func dumpTransitions(w io.Writer, path, sessionID string, limit int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot open dump: %w", err)
	}
	db, err := database.GetSqliteDB(path)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	backend := gormstorage.New(gormstorage.Dependencies{DB: db, Logger: Logger})
	sess, err := backend.GetSession(sessionID)
	if err != nil {
		return err
	}
	total, err := backend.CountTransitions(sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s %s started %s, %d transitions\n",
		sess.ID, sess.SceneName, sess.StartedAt.Format("2006-01-02 15:04:05"), total)

	records, err := backend.ListTransitions(sessionID, 0, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
