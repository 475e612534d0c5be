package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sparkdeck/spark/game"
)

// playGame runs the local-resident shape: one session, one terminal, every
// move flushed to a snapshot so a crash or restart picks up where the game
// left off.
func playGame(ctx context.Context, cfg *Config) error {
	dir := cfg.stateDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve state dir: %w", err)
		}
		dir = filepath.Join(base, "spark")
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	snapshots := game.NewSnapshotStore(filepath.Join(dir, "session.json"))
	favorites, err := game.NewFileFavorites(filepath.Join(dir, "favorites.json"))
	if err != nil {
		return err
	}

	engine := game.NewEngine(snapshots, catalog, favorites, nil)
	in := bufio.NewScanner(os.Stdin)

	sessionID, err := resumeOrStart(ctx, cfg, engine, snapshots, in)
	if err != nil {
		return err
	}

	return gameLoop(ctx, engine, favorites, in, sessionID)
}

func resumeOrStart(ctx context.Context, cfg *Config, engine *game.Engine, snapshots *game.SnapshotStore, in *bufio.Scanner) (string, error) {
	if sess, ok, err := snapshots.Resume(ctx); err != nil {
		return "", err
	} else if ok {
		fmt.Printf("Resuming game between %s and %s (%d of %d cards drawn).\n\n",
			sess.PlayerNames[0], sess.PlayerNames[1], len(sess.DrawnCardIDs), sess.TargetCardCount)
		return sess.SessionID, nil
	}

	names := append([]string(nil), cfg.players...)
	for len(usableNames(names)) < 2 {
		fmt.Printf("Player %d name: ", len(usableNames(names))+1)
		if !in.Scan() {
			return "", errors.New("no player names provided")
		}
		names = append(names, in.Text())
	}

	preset, ok := game.Presets[cfg.preset]
	if !ok {
		return "", fmt.Errorf("unknown preset %q (must be quick, standard, or extended)", cfg.preset)
	}
	count := cfg.count
	if count == 0 {
		count = preset.CardCount
	}

	view, err := engine.Start(ctx, game.StartConfig{
		PlayerNames:     names,
		Ceiling:         cfg.ceiling(),
		Sections:        preset.Sections,
		TargetCardCount: count,
		MaxSkips:        cfg.maxSkips,
	})
	if err != nil {
		return "", err
	}

	fmt.Printf("\n%s: %d cards, %s intensity, %d skips. %s goes first.\n\n",
		preset.Name, count, view.IntensityCeiling, view.SkipsRemaining, view.CurrentPlayer)
	return view.SessionID, nil
}

func usableNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out
}

func gameLoop(ctx context.Context, engine *game.Engine, favorites game.Favorites, in *bufio.Scanner, sessionID string) error {
	for {
		status, err := engine.Status(ctx, sessionID)
		if err != nil {
			return err
		}

		card, view, err := engine.Draw(ctx, sessionID)
		if errors.Is(err, game.ErrNoCardsAvailable) {
			fmt.Println("The deck is empty. Wrapping up.")
			return finish(ctx, engine, sessionID, true)
		}
		if err != nil {
			return err
		}

		fmt.Printf("── %s ──────────────\n", status.CurrentPlayer)
		fmt.Printf("[%s · %s · %s]\n%s\n\n", card.Section, card.Type, card.Intensity, card.Content)

	input:
		for {
			fmt.Print("[enter] done  [f]avorite  [s]kip  [q]uit: ")
			if !in.Scan() {
				return finish(ctx, engine, sessionID, true)
			}
			switch strings.ToLower(strings.TrimSpace(in.Text())) {
			case "":
				break input
			case "f":
				if _, err := favorites.Add(ctx, card.ID); err != nil {
					return err
				}
				fmt.Println("Added to favorites.")
			case "s":
				remaining, err := engine.Skip(ctx, sessionID)
				if errors.Is(err, game.ErrSkipsExhausted) {
					fmt.Println("No skips remaining.")
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("Skipped. %d skips remaining.\n", remaining)
				break input
			case "q":
				return finish(ctx, engine, sessionID, false)
			default:
				continue
			}
		}

		if !view.Active {
			fmt.Println("\nThat was the last card!")
			return finish(ctx, engine, sessionID, true)
		}
		fmt.Printf("Progress: %d%%\n\n", view.Progress)
	}
}

// finish ends the session when still active, then prints the summary.
func finish(ctx context.Context, engine *game.Engine, sessionID string, alreadyEnded bool) error {
	if !alreadyEnded {
		stats, err := engine.End(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Printf("\nGame over after %d minutes: %d cards, %d questions, %d tasks.\n",
			stats.Duration, stats.TotalCards, stats.QuestionsAnswered, stats.TasksCompleted)
	}

	summary, err := engine.Summary(ctx, sessionID)
	if err != nil {
		// Ended via the last draw or user quit before any draw; either way
		// a missing summary shouldn't eat the farewell.
		fmt.Println("Thanks for playing!")
		return nil
	}

	fmt.Printf("\nCompleted %d of %d cards (%d%%) in %ds.\n",
		summary.CompletedCards, summary.TotalCards, summary.CompletionPercentage, summary.SessionTimeSeconds)
	if summary.FavoriteCardsInSession > 0 {
		fmt.Printf("%d favorites this session; top favorite: %s\n",
			summary.FavoriteCardsInSession, summary.TopFavoriteCard)
	}
	fmt.Println("Thanks for playing!")
	return nil
}
