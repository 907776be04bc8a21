package strategy

import (
	"context"

	"codeberg.org/mutker/hostmon/internal/power"
)

// Power computes the host power and energy after a collect. It reuses the
// collect's strategy time so enclosure metrics of that cycle count as
// measured.
type Power struct {
	Session *Session

	aggregation power.Aggregation
}

func (p *Power) Name() string { return "power" }

func (p *Power) Prepare(context.Context) error {
	if p.Session.Telemetry.StrategyTime().IsZero() {
		p.Session.begin()
	}
	return nil
}

func (p *Power) Execute(context.Context) error {
	p.aggregation = power.AggregateHost(p.Session.Telemetry, p.Session.Telemetry.StrategyTime())
	return nil
}

func (p *Power) Post(context.Context) error {
	event := p.Session.Log.Debug().Str("quality", p.aggregation.Quality)
	if p.aggregation.HasPower {
		event = event.Float64("watts", p.aggregation.Power)
	}
	if p.aggregation.HasEnergy {
		event = event.Float64("joules", p.aggregation.Energy)
	}
	event.Msg("Host power aggregated")
	return nil
}

func (p *Power) Release() {}

// Aggregation returns the outcome of the last run.
func (p *Power) Aggregation() power.Aggregation {
	return p.aggregation
}
