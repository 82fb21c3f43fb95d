// Command battlesim runs many evaluation fights between two groups and
// reports how they went.
//
//	battlesim -attacker heavy_infantry*3,hero -defender pikemen*2 -terrain hills -structure city -city-defense 2 -n 1000
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/ruleset"
	"github.com/freeeve/warband/internal/service"
	"github.com/freeeve/warband/pkg/combat"
)

type options struct {
	attacker    string
	defender    string
	terrain     string
	structure   string
	cityDefense int
	fortified   bool
	waterborne  bool
	intense     bool
	fights      int
	workers     int
	seed        int64
	rulesetPath string
	showLog     bool
	jsonOut     bool
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var opts options
	flag.StringVar(&opts.attacker, "attacker", "heavy_infantry*3", "Attacking units (e.g. heavy_infantry*3,hero)")
	flag.StringVar(&opts.defender, "defender", "light_infantry*3", "Defending units")
	flag.StringVar(&opts.terrain, "terrain", "open", "Defender's terrain")
	flag.StringVar(&opts.structure, "structure", "", "Defender's structure (city, ruin, temple or tower)")
	flag.IntVar(&opts.cityDefense, "city-defense", 0, "City defense level")
	flag.BoolVar(&opts.fortified, "fortified", false, "Defending group is fortified")
	flag.BoolVar(&opts.waterborne, "waterborne", false, "Attackers fight from boats")
	flag.BoolVar(&opts.intense, "intense", false, "Duel with a 24-sided die")
	flag.IntVar(&opts.fights, "n", 1000, "Number of fights")
	flag.IntVar(&opts.workers, "workers", 4, "Concurrency (parallel fights)")
	flag.Int64Var(&opts.seed, "seed", 1, "Base seed; fight i uses seed+i")
	flag.StringVar(&opts.rulesetPath, "ruleset", "", "Unit catalog YAML (built-in when empty)")
	flag.BoolVar(&opts.showLog, "log", false, "Print the event log of the first fight")
	flag.BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	flag.Parse()

	catalog, err := ruleset.LoadOrDefault(opts.rulesetPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Ruleset load failed")
	}

	setup, err := buildSetup(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad setup")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	svc := service.NewBattleService(nil, nil, catalog, nil, service.BattleOptions{Seed: opts.seed})

	if opts.showLog {
		res, err := svc.Resolve(ctx, "battlesim", "battlesim", service.BattleRequest{
			BattleSetup: setup,
			Evaluation:  true,
			Intense:     opts.intense,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Fight failed")
		}
		fmt.Fprintf(os.Stderr, "%s after %d rounds: %s\n", res.Outcome, res.Rounds, combat.FormatEvents(res.Events))
	}

	report, err := svc.Simulate(ctx, service.SimulateRequest{
		BattleSetup: setup,
		Fights:      opts.fights,
		Workers:     opts.workers,
		Intense:     opts.intense,
		Seed:        opts.seed,
	})
	if err != nil {
		if report == nil {
			log.Fatal().Err(err).Msg("Simulation failed")
		}
		log.Warn().Err(err).Int("completed", report.Fights).Msg("Simulation interrupted")
	}

	if opts.jsonOut {
		printJSON(report)
	} else {
		printSummary(opts, report)
	}
}

// parseUnits turns "type*n,type" into unit inputs numbered from firstID.
func parseUnits(spec string, firstID combat.UnitID, waterborne bool) ([]service.UnitInput, error) {
	var units []service.UnitInput
	id := firstID
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count := part, 1
		if i := strings.IndexByte(part, '*'); i >= 0 {
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad count in %q", part)
			}
			name, count = part[:i], n
		}
		for range count {
			units = append(units, service.UnitInput{ID: id, Type: name, Waterborne: waterborne})
			id++
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no units in %q", spec)
	}
	return units, nil
}

func buildSetup(opts options) (service.BattleSetup, error) {
	attackers, err := parseUnits(opts.attacker, 1, opts.waterborne)
	if err != nil {
		return service.BattleSetup{}, fmt.Errorf("attacker: %w", err)
	}
	defenders, err := parseUnits(opts.defender, 1000, false)
	if err != nil {
		return service.BattleSetup{}, fmt.Errorf("defender: %w", err)
	}

	atkPos := combat.Position{X: 0, Y: 0}
	defPos := combat.Position{X: 1, Y: 0}
	return service.BattleSetup{
		Attackers: []service.GroupInput{{ID: "attacker", Owner: "attacker", Pos: atkPos, Units: attackers}},
		Defenders: []service.GroupInput{{ID: "defender", Owner: "defender", Pos: defPos, Fortified: opts.fortified, Units: defenders}},
		Tiles: []service.TileInput{
			{Pos: atkPos, Terrain: "open"},
			{Pos: defPos, Terrain: opts.terrain, Structure: opts.structure, Defense: opts.cityDefense},
		},
	}, nil
}

func printSummary(opts options, r *service.SimulationReport) {
	fmt.Printf("\n%s vs %s (%s", opts.attacker, opts.defender, opts.terrain)
	if opts.structure != "" {
		fmt.Printf(", %s", opts.structure)
		if opts.cityDefense > 0 {
			fmt.Printf(" level %d", opts.cityDefense)
		}
	}
	if opts.fortified {
		fmt.Print(", fortified")
	}
	fmt.Println(")")

	fmt.Printf("  fights:        %d\n", r.Fights)
	fmt.Printf("  attacker wins: %d (%.1f%%)\n", r.AttackerWins, 100*r.AttackerWinRate)
	fmt.Printf("  defender wins: %d\n", r.DefenderWins)
	fmt.Printf("  rounds:        mean %.1f, min %d, max %d\n", r.MeanRounds, r.MinRounds, r.MaxRounds)
	fmt.Printf("  deaths:        mean %.2f\n", r.MeanDeaths)
	if r.ReplayMismatches > 0 {
		fmt.Printf("  REPLAY MISMATCHES: %d\n", r.ReplayMismatches)
	}
}

func printJSON(r *service.SimulationReport) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(r)
}
