package service

import (
	"address-intelligence/internal/domain/entity"
)

// PortfolioSizeOf buckets the summed average value of a profile's patterns
func PortfolioSizeOf(p *entity.AddressProfile) entity.PortfolioSize {
	var total float64
	for _, tp := range p.TransactionPatterns {
		total += tp.AverageValue
	}
	switch {
	case total >= 1_000_000:
		return entity.PortfolioWhale
	case total >= 100_000:
		return entity.PortfolioLarge
	case total >= 10_000:
		return entity.PortfolioMedium
	default:
		return entity.PortfolioSmall
	}
}

// TradingFrequencyOf maps the fastest pattern frequency to a cohort bucket
func TradingFrequencyOf(p *entity.AddressProfile) entity.TradingFrequency {
	best := entity.TradingUnknown
	rank := 0
	for _, tp := range p.TransactionPatterns {
		var f entity.TradingFrequency
		var r int
		switch tp.Frequency {
		case entity.FrequencyDaily:
			f, r = entity.TradingVeryHigh, 4
		case entity.FrequencyWeekly:
			f, r = entity.TradingHigh, 3
		case entity.FrequencyMonthly:
			f, r = entity.TradingMedium, 2
		case entity.FrequencyIrregular:
			f, r = entity.TradingLow, 1
		default:
			continue
		}
		if r > rank {
			best, rank = f, r
		}
	}
	return best
}

// RiskToleranceOf derives tolerance from mean pattern volatility
func RiskToleranceOf(p *entity.AddressProfile) entity.RiskTolerance {
	if len(p.TransactionPatterns) == 0 {
		return entity.ToleranceModerate
	}
	var sum float64
	for _, tp := range p.TransactionPatterns {
		sum += tp.Volatility
	}
	avg := sum / float64(len(p.TransactionPatterns))
	switch {
	case avg > 0.6:
		return entity.ToleranceAggressive
	case avg > 0.3:
		return entity.ToleranceModerate
	default:
		return entity.ToleranceConservative
	}
}

// ActivityLevelOf scales activity onto 0-1000 and applies 750/500/250 cut-offs
func ActivityLevelOf(p *entity.AddressProfile) entity.ActivityLevel {
	scaled := p.ActivityScore * 10
	switch {
	case scaled > 750:
		return entity.ActivityHigh
	case scaled > 500:
		return entity.ActivityMedium
	case scaled > 250:
		return entity.ActivityLow
	default:
		return entity.ActivityInactive
	}
}
