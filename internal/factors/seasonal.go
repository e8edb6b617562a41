package factors

import "time"

// seasonalPattern describes the historical tendency for one calendar month
type seasonalPattern struct {
	Bias    Direction
	WinRate int
	Pattern string
}

// seasonalTable maps calendar months to historical BTC tendencies
var seasonalTable = map[time.Month]seasonalPattern{
	time.January:   {Neutral, 55, "January Effect"},
	time.February:  {Bearish, 45, "Winter Lull"},
	time.March:     {Bullish, 60, "Q1 Recovery"},
	time.April:     {Neutral, 50, "Spring Uncertainty"},
	time.May:       {Bearish, 40, "Sell in May"},
	time.June:      {Bearish, 35, "Summer Doldrums"},
	time.July:      {Bearish, 35, "Summer Doldrums"},
	time.August:    {Neutral, 45, "Late Summer"},
	time.September: {Bearish, 40, "September Effect"},
	time.October:   {Neutral, 50, "October Setup"},
	time.November:  {Bullish, 65, "Q4 Rally"},
	time.December:  {Bullish, 70, "Year-end Rally"},
}

// seasonalFor returns the pattern for the given month
func seasonalFor(month time.Month) seasonalPattern {
	if p, ok := seasonalTable[month]; ok {
		return p
	}
	return seasonalPattern{Neutral, 50, "Unknown"}
}
