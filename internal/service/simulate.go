package service

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/pkg/combat"
)

// SimulateRequest asks for many evaluation fights over one setup.
type SimulateRequest struct {
	BattleSetup
	Fights  int   `json:"fights"`
	Workers int   `json:"workers,omitempty"`
	Intense bool  `json:"intense,omitempty"`
	Seed    int64 `json:"seed"` // first fight's seed; fight i uses Seed+i
}

// SimulationReport aggregates a batch of evaluation fights.
type SimulationReport struct {
	Fights           int     `json:"fights"`
	AttackerWins     int     `json:"attacker_wins"`
	DefenderWins     int     `json:"defender_wins"`
	AttackerWinRate  float64 `json:"attacker_win_rate"`
	MeanRounds       float64 `json:"mean_rounds"`
	MinRounds        int     `json:"min_rounds"`
	MaxRounds        int     `json:"max_rounds"`
	MeanDeaths       float64 `json:"mean_deaths"`
	ReplayMismatches int     `json:"replay_mismatches"`
}

type simOutcome struct {
	done     bool
	outcome  combat.Outcome
	rounds   int
	deaths   int
	mismatch bool
}

// Simulate runs evaluation fights on worker goroutines. Every fight's event
// log is replayed against a fresh copy of the setup; a replay that does not
// reach the live outcome counts as a mismatch.
func (s *BattleService) Simulate(ctx context.Context, req SimulateRequest) (*SimulationReport, error) {
	if err := req.Validate(s.catalog); err != nil {
		return nil, err
	}
	if req.Fights < 1 {
		req.Fights = 1
	}
	workers := max(req.Workers, 1)
	opts := combat.Options{Kind: combat.ForEvaluation, Intense: s.opts.Intense || req.Intense}

	results := make([]simOutcome, req.Fights)
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i := 0; i < req.Fights; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = s.simulateOne(req.BattleSetup, opts, req.Seed+int64(idx))
		}(i)
	}
	wg.Wait()

	report := summarize(results)
	if report.ReplayMismatches > 0 {
		log.Warn().Int("mismatches", report.ReplayMismatches).Msg("Replays diverged from live fights")
	}
	return report, ctx.Err()
}

func (s *BattleService) simulateOne(setup BattleSetup, opts combat.Options, seed int64) simOutcome {
	live := setup.build(s.catalog)
	res := combat.NewEncounter(live.attackers, live.defenders, live.board, opts).
		Resolve(rand.New(rand.NewSource(seed)))

	peer := setup.build(s.catalog)
	replayed, err := combat.Replay(peer.attackers, peer.defenders, res.Events)

	return simOutcome{
		done:     true,
		outcome:  res.Outcome,
		rounds:   res.Rounds,
		deaths:   len(res.Deaths),
		mismatch: err != nil || replayed.Outcome != res.Outcome,
	}
}

func summarize(results []simOutcome) *SimulationReport {
	r := &SimulationReport{}
	totalRounds, totalDeaths := 0, 0
	for _, o := range results {
		if !o.done {
			continue
		}
		if r.Fights == 0 || o.rounds < r.MinRounds {
			r.MinRounds = o.rounds
		}
		r.MaxRounds = max(r.MaxRounds, o.rounds)
		r.Fights++
		totalRounds += o.rounds
		totalDeaths += o.deaths
		switch o.outcome {
		case combat.AttackerPrevailed:
			r.AttackerWins++
		case combat.DefenderPrevailed:
			r.DefenderWins++
		}
		if o.mismatch {
			r.ReplayMismatches++
		}
	}
	if r.Fights > 0 {
		r.AttackerWinRate = float64(r.AttackerWins) / float64(r.Fights)
		r.MeanRounds = float64(totalRounds) / float64(r.Fights)
		r.MeanDeaths = float64(totalDeaths) / float64(r.Fights)
	}
	return r
}
