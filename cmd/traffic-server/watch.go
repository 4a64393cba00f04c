package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/network"
)

type watchOptions struct {
	url      string
	clients  int
	duration time.Duration
	region   string
	quiet    bool
}

// watchStats tracks what the dashboards received.
type watchStats struct {
	Snapshots int64
	Events    int64
	Errors    int64
	LastTick  int64
}

func newWatchCmd() *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach one or more dashboard clients to a running server",
		Long: `Connects to the websocket feed of a running server and prints every event.
With --clients > 1 it doubles as a load generator for the broadcast path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			stats := watch(ctx, cmd.OutOrStdout(), opts)
			printWatchResults(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.url, "url", "u", "ws://localhost:8080/ws", "WebSocket server URL")
	cmd.Flags().IntVar(&opts.clients, "clients", 1, "Number of concurrent dashboards")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().StringVar(&opts.region, "select", "", "Send SELECT_REGION for this region after connecting")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final counters")
	return cmd
}

func watch(ctx context.Context, out io.Writer, opts watchOptions) *watchStats {
	stats := &watchStats{}
	if opts.clients < 1 {
		opts.clients = 1
	}

	var (
		wg    sync.WaitGroup
		outMu sync.Mutex
	)
	for i := 0; i < opts.clients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			// Only the first dashboard prints, the others just count.
			printer := func(string) {}
			if clientID == 0 && !opts.quiet {
				printer = func(line string) {
					outMu.Lock()
					fmt.Fprintln(out, line)
					outMu.Unlock()
				}
			}
			runWatchClient(ctx, opts, clientID == 0, stats, printer)
		}(i)

		// Stagger client starts to avoid thundering herd
		if opts.clients > 1 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	wg.Wait()
	return stats
}

func runWatchClient(ctx context.Context, opts watchOptions, selects bool, stats *watchStats, printLine func(string)) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.url, nil)
	if err != nil {
		printLine("connection failed: " + err.Error())
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	if selects && opts.region != "" {
		if err := conn.WriteJSON(network.Command{Type: network.CommandSelectRegion, Region: opts.region}); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
		}
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&stats.Errors, 1)
			}
			return
		}

		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			continue
		}

		switch env.Type {
		case network.MessageSnapshot:
			atomic.AddInt64(&stats.Snapshots, 1)
			var snap engine.Snapshot
			if json.Unmarshal(env.Data, &snap) == nil {
				atomic.StoreInt64(&stats.LastTick, snap.Tick)
			}
		case network.MessageEvent:
			atomic.AddInt64(&stats.Events, 1)
			var e events.Event
			if json.Unmarshal(env.Data, &e) == nil {
				printLine(fmt.Sprintf("[%s] tick %d %s %s %s", e.Timestamp.Format("15:04:05"), e.Tick, e.Type, e.Region, e.TargetID))
			}
		}
	}
}

func printWatchResults(out io.Writer, stats *watchStats) {
	fmt.Fprintln(out, "=========================================")
	fmt.Fprintf(out, "Snapshots received: %d\n", atomic.LoadInt64(&stats.Snapshots))
	fmt.Fprintf(out, "Events received:    %d\n", atomic.LoadInt64(&stats.Events))
	fmt.Fprintf(out, "Last tick:          %d\n", atomic.LoadInt64(&stats.LastTick))
	fmt.Fprintf(out, "Errors:             %d\n", atomic.LoadInt64(&stats.Errors))
	fmt.Fprintln(out, "=========================================")
}
