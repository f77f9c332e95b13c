// Command simulate publishes random rainfall readings for a set of
// subdivision sensors, over MQTT or through the HTTP ingest endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stationsCSV string
	interval    time.Duration
	cyclePause  time.Duration
	cycles      int
	minValue    float64
	maxValue    float64
)

var rootCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Rainfall sensor simulator",
	Long: `simulate emits one reading per subdivision sensor in a loop, with
values drawn uniformly between --min and --max millimetres.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&stationsCSV, "stations", "", "CSV with subdivision,latitude,longitude columns (built-in list when empty)")
	pf.DurationVar(&interval, "interval", time.Second, "delay between sensors")
	pf.DurationVar(&cyclePause, "cycle-pause", 5*time.Second, "delay between full cycles")
	pf.IntVar(&cycles, "cycles", 0, "number of cycles to run (0 runs until interrupted)")
	pf.Float64Var(&minValue, "min", 50, "lowest simulated value in mm")
	pf.Float64Var(&maxValue, "max", 150, "highest simulated value in mm")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// sendFunc delivers one simulated reading.
type sendFunc func(ctx context.Context, r simulatedReading) error

// runCycles loads the stations and calls send for each sensor until ctx is
// done or the requested number of cycles completes.
func runCycles(cmd *cobra.Command, send sendFunc) error {
	if minValue < 0 || maxValue < minValue {
		return fmt.Errorf("invalid range: --min %.2f --max %.2f", minValue, maxValue)
	}
	stations, err := loadStations(stationsCSV)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "simulating %d sensors\n", len(stations))

	ctx := cmd.Context()
	gen := newGenerator(stations, minValue, maxValue)
	for cycle := 0; cycles == 0 || cycle < cycles; cycle++ {
		for _, r := range gen.next() {
			if err := send(ctx, r); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "send %s: %v\n", r.SensorID, err)
			} else {
				fmt.Fprintf(out, "sent %s %s %.2f mm\n", r.SensorID, r.Subdivision, r.Value)
			}
			if !sleep(ctx, interval) {
				return nil
			}
		}
		if !sleep(ctx, cyclePause) {
			return nil
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
