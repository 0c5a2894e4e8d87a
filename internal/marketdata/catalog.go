package marketdata

import (
	"sort"
	"strings"
)

// OtherSector groups symbols missing from the catalog
const OtherSector = "Other"

// Catalog maps asset symbols to their sector
type Catalog map[string]string

// DefaultCatalog covers the default watchlist
func DefaultCatalog() Catalog {
	return Catalog{
		"BTC":  "L1",
		"ETH":  "L1",
		"SOL":  "L1",
		"ADA":  "L1",
		"AVAX": "L1",
		"BNB":  "Exchange",
		"XRP":  "Payments",
		"LINK": "Oracle",
		"UNI":  "DeFi",
		"AAVE": "DeFi",
	}
}

// SectorOf returns the sector of a symbol
func (c Catalog) SectorOf(symbol string) string {
	if s, ok := c[strings.ToUpper(symbol)]; ok {
		return s
	}
	return OtherSector
}

// Sectors returns the distinct sectors, sorted
func (c Catalog) Sectors() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(c))
	for _, s := range c {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
