package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"swarmsim/pkg/logger"
	"swarmsim/pkg/sim"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

var (
	cfg      = sim.DefaultConfig()
	csvPath  string
	runShell bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a swarm simulation",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Sugar.Infof("Starting simulation: %d seeds, %d leechers, %d pieces",
			cfg.NumSeeds, cfg.NumLeechers, cfg.NumPieces)

		s, err := sim.New(cfg)
		if err != nil {
			logger.Sugar.Fatalf("Failed to build simulation: %v", err)
		}

		report, err := s.Run()
		if err != nil {
			logger.Sugar.Fatalf("Simulation aborted: %v", err)
		}

		fmt.Print(report.String())

		if csvPath != "" {
			if err := exportTrace(s, csvPath); err != nil {
				logger.Sugar.Errorf("Failed to export trace: %v", err)
			} else {
				fmt.Printf("trace written to %s (%d records)\n", csvPath, s.Trace().Len())
			}
		}

		if runShell {
			fmt.Println("Swarm Simulator Inspection Shell")
			fmt.Println("Type 'help' for commands.")

			prompt.New(
				func(in string) { runExecutor(in, s, report) },
				runCompleter,
				prompt.OptionPrefix("swarmsim> "),
				prompt.OptionTitle("Swarm Simulator"),
			).Run()
		}
	},
}

func exportTrace(s *sim.Simulation, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer f.Close()
	return s.Trace().WriteCSV(f)
}

func runExecutor(in string, s *sim.Simulation, report *sim.Report) {
	in = strings.TrimSpace(in)
	blocks := strings.Fields(in)
	if len(blocks) == 0 {
		return
	}

	switch blocks[0] {
	case "exit", "quit":
		os.Exit(0)
	case "report":
		fmt.Print(report.String())
	case "events":
		for kind, n := range report.EventsByKind {
			fmt.Printf("  %-26s %d\n", kind, n)
		}
	case "peer":
		if len(blocks) < 2 {
			fmt.Println("Usage: peer <id>")
			return
		}
		p, ok := s.Tracker().Lookup(blocks[1])
		if !ok {
			fmt.Println("Unknown peer: " + blocks[1])
			return
		}
		fmt.Printf("%s (%s) pieces=%s\n", p.ID, p.Role, p.Pieces)
		fmt.Printf("  downloaded=%dB uploaded=%dB\n", p.TotalDownloaded(), p.TotalUploaded())
		if p.Completed {
			fmt.Printf("  completed at t=%v\n", p.CompletionTime)
		}
	case "rarity":
		for i := 0; i < s.Registry().NumPieces(); i++ {
			fmt.Printf("  piece %-3d rarity=%d\n", i, s.Registry().Rarity(i))
		}
	case "owners":
		if len(blocks) < 2 {
			fmt.Println("Usage: owners <piece>")
			return
		}
		idx, err := strconv.Atoi(blocks[1])
		if err != nil {
			fmt.Println("Not a piece index: " + blocks[1])
			return
		}
		fmt.Println(strings.Join(s.Tracker().PeersSharing(idx), ", "))
	case "trace":
		n := 20
		if len(blocks) > 1 {
			if parsed, err := strconv.Atoi(blocks[1]); err == nil {
				n = parsed
			}
		}
		records := s.Trace().Records()
		if n > len(records) {
			n = len(records)
		}
		for _, r := range records[len(records)-n:] {
			fmt.Printf("  t=%-8v %-26s %s -> %s: %s\n", r.Time, r.Kind, r.Source, r.Target, r.Note)
		}
	case "export":
		if len(blocks) < 2 {
			fmt.Println("Usage: export <file.csv>")
			return
		}
		if err := exportTrace(s, blocks[1]); err != nil {
			fmt.Printf("Error exporting trace: %v\n", err)
		} else {
			fmt.Println("Trace exported.")
		}
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  report           - Show the termination report")
		fmt.Println("  events           - Event counts by kind")
		fmt.Println("  peer <id>        - Inspect a single peer")
		fmt.Println("  rarity           - Piece rarity table")
		fmt.Println("  owners <piece>   - Peers owning a piece")
		fmt.Println("  trace [n]        - Show the last n trace records")
		fmt.Println("  export <file>    - Write the trace as CSV")
		fmt.Println("  exit             - Leave the shell")
	default:
		fmt.Println("Unknown command: " + blocks[0])
	}
}

func runCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "report", Description: "Show the termination report"},
		{Text: "events", Description: "Event counts by kind"},
		{Text: "peer", Description: "Inspect a single peer"},
		{Text: "rarity", Description: "Piece rarity table"},
		{Text: "owners", Description: "Peers owning a piece"},
		{Text: "trace", Description: "Show recent trace records"},
		{Text: "export", Description: "Write the trace as CSV"},
		{Text: "exit", Description: "Leave the shell"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&cfg.NumSeeds, "seeds", cfg.NumSeeds, "Number of initial seeds")
	runCmd.Flags().IntVar(&cfg.NumLeechers, "leechers", cfg.NumLeechers, "Number of leechers")
	runCmd.Flags().IntVar(&cfg.NumPieces, "pieces", cfg.NumPieces, "Number of pieces in the file")
	runCmd.Flags().Int64Var(&cfg.PieceSize, "piece-size", cfg.PieceSize, "Piece size in bytes")
	runCmd.Flags().Float64Var(&cfg.MaxTime, "max-time", cfg.MaxTime, "Simulation horizon")
	runCmd.Flags().Float64Var(&cfg.UploadSpeed, "upload-speed", cfg.UploadSpeed, "Per-peer upload speed (bytes per time unit)")
	runCmd.Flags().Float64Var(&cfg.DownloadSpeed, "download-speed", cfg.DownloadSpeed, "Per-peer download speed (bytes per time unit)")
	runCmd.Flags().Float64Var(&cfg.ChokeInterval, "choke-interval", cfg.ChokeInterval, "Choke review interval")
	runCmd.Flags().Float64Var(&cfg.OptimisticInterval, "optimistic-interval", cfg.OptimisticInterval, "Optimistic unchoke interval")
	runCmd.Flags().IntVar(&cfg.UnchokeSlots, "unchoke-slots", cfg.UnchokeSlots, "Regular unchoke slot count")
	runCmd.Flags().Float64Var(&cfg.EndgameFraction, "endgame-fraction", cfg.EndgameFraction, "Missing-piece fraction that enters endgame mode")
	runCmd.Flags().Float64Var(&cfg.ControlLatency, "control-latency", cfg.ControlLatency, "Control message delivery delay")
	runCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random source seed for reproducible runs")
	runCmd.Flags().StringVar(&csvPath, "csv", "", "Write the event trace to a CSV file")
	runCmd.Flags().BoolVarP(&runShell, "interactive", "i", false, "Drop into an inspection shell after the run")
}
