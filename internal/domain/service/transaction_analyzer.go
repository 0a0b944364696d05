package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"address-intelligence/internal/domain/entity"
)

const defaultTransactionType = "transfer"

// AnalyzeTransactions buckets raw transactions into one pattern per
// transaction type. Patterns are ordered by type name.
func AnalyzeTransactions(data []entity.TransactionData) []entity.TransactionPattern {
	groups := make(map[string][]entity.TransactionData)
	for _, tx := range data {
		t := tx.Type
		if t == "" {
			t = defaultTransactionType
		}
		groups[t] = append(groups[t], tx)
	}

	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Strings(types)

	patterns := make([]entity.TransactionPattern, 0, len(types))
	for _, t := range types {
		txs := groups[t]
		sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })

		patterns = append(patterns, entity.TransactionPattern{
			Frequency:        frequencyOf(txs),
			AverageValue:     meanValue(txs),
			PreferredTimes:   preferredHours(txs, 3),
			TransactionTypes: []string{t},
			Volatility:       volatilityOf(txs),
		})
	}
	return patterns
}

// frequencyOf expects txs sorted by timestamp
func frequencyOf(txs []entity.TransactionData) entity.Frequency {
	if len(txs) < 2 {
		return entity.FrequencyIrregular
	}
	span := txs[len(txs)-1].Timestamp.Sub(txs[0].Timestamp)
	interval := span / time.Duration(len(txs)-1)

	switch {
	case interval <= 24*time.Hour:
		return entity.FrequencyDaily
	case interval <= 7*24*time.Hour:
		return entity.FrequencyWeekly
	case interval <= 31*24*time.Hour:
		return entity.FrequencyMonthly
	default:
		return entity.FrequencyIrregular
	}
}

func meanValue(txs []entity.TransactionData) float64 {
	if len(txs) == 0 {
		return 0
	}
	var sum float64
	for _, tx := range txs {
		sum += tx.Value
	}
	return sum / float64(len(txs))
}

// volatilityOf is the coefficient of variation clamped to [0,1]
func volatilityOf(txs []entity.TransactionData) float64 {
	mean := meanValue(txs)
	if len(txs) < 2 || mean == 0 {
		return 0
	}
	var sq float64
	for _, tx := range txs {
		d := tx.Value - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(txs))) / math.Abs(mean)
	return math.Min(1, cv)
}

func preferredHours(txs []entity.TransactionData, limit int) []string {
	counts := make(map[int]int)
	for _, tx := range txs {
		counts[tx.Timestamp.UTC().Hour()]++
	}
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > limit {
		hours = hours[:limit]
	}
	out := make([]string, len(hours))
	for i, h := range hours {
		out[i] = fmt.Sprintf("%02d:00", h)
	}
	return out
}
