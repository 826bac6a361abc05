// Command duelbot connects a crowd of scripted players to a duelhall server.
// Each bot joins, plays random legal moves, and rejoins until it has
// finished the requested number of games, then the combined results are
// printed as a table.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "duelbot",
		Usage: "play scripted games against a duelhall server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "ws://localhost:8080/ws",
				Usage: "WebSocket endpoint of the server",
			},
			&cli.IntFlag{
				Name:  "bots",
				Value: 2,
				Usage: "number of concurrent bots (pairs up best when even)",
			},
			&cli.IntFlag{
				Name:  "games",
				Value: 1,
				Usage: "games each bot plays before disconnecting",
			},
			&cli.StringFlag{
				Name:  "name",
				Value: "bot",
				Usage: "display name prefix",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "give up after this long",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "only print the summary",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			bots := cmd.Int("bots")
			games := cmd.Int("games")
			if bots < 1 || games < 1 {
				return fmt.Errorf("bots and games must be positive")
			}
			if bots%2 != 0 {
				pterm.Warning.Printfln("%d bots is odd, one may wait for an opponent until timeout", bots)
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			results := runBots(ctx, cmd.String("url"), cmd.String("name"), bots, games, cmd.Bool("quiet"))
			return printSummary(results)
		},
	}
}

type botResult struct {
	bot *Bot
	err error
}

func runBots(ctx context.Context, url, prefix string, bots, games int, quiet bool) []botResult {
	seed := uint64(time.Now().UnixNano())
	results := make([]botResult, bots)

	var wg sync.WaitGroup
	for i := 0; i < bots; i++ {
		name := fmt.Sprintf("%s-%d", prefix, i+1)
		b := NewBot(name, url+"?name="+name, games, seed+uint64(i))
		b.Quiet = quiet
		results[i].bot = b

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i].err = b.Run(ctx)
		}(i)
	}
	wg.Wait()
	return results
}

func printSummary(results []botResult) error {
	data := pterm.TableData{{"Bot", "Games", "Wins", "Losses", "Draws", "Moves", "Rejected", "Error"}}
	var failed int
	for _, r := range results {
		t := r.bot.Tally
		errText := ""
		if r.err != nil {
			errText = r.err.Error()
			failed++
		}
		data = append(data, []string{
			r.bot.Name,
			strconv.Itoa(t.Games()),
			strconv.Itoa(t.Wins),
			strconv.Itoa(t.Losses),
			strconv.Itoa(t.Draws),
			strconv.Itoa(t.Moves),
			strconv.Itoa(t.Rejected),
			errText,
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bots failed", failed, len(results))
	}
	pterm.Success.Printfln("All %d bots finished", len(results))
	return nil
}
