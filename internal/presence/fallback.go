package presence

// defaultFallback holds approximate counts of foreign diplomatic missions
// hosted by well-known countries, keyed by lowercased common name. Used only
// when every variant lookup failed.
var defaultFallback = map[string]int{
	"argentina":            90,
	"australia":            110,
	"austria":              120,
	"belgium":              180,
	"brazil":               135,
	"canada":               130,
	"chile":                80,
	"china":                170,
	"egypt":                140,
	"france":               165,
	"germany":              155,
	"india":                150,
	"indonesia":            110,
	"italy":                140,
	"japan":                155,
	"kenya":                100,
	"mexico":               95,
	"netherlands":          110,
	"nigeria":              115,
	"russia":               145,
	"saudi arabia":         115,
	"south africa":         130,
	"south korea":          115,
	"spain":                120,
	"sweden":               100,
	"switzerland":          170,
	"turkey":               135,
	"united arab emirates": 120,
	"united kingdom":       160,
	"united states":        175,
}

// majorSenders are the countries summed by Total.
var majorSenders = []string{
	"united states",
	"china",
	"france",
	"germany",
	"united kingdom",
	"japan",
	"russia",
	"india",
	"brazil",
	"italy",
}

// fallbackCount returns the tabulated count for the first variant present
// in the table, or 0.
func (c *Cache) fallbackCount(destinations []Variant) int {
	for _, v := range destinations {
		if n, ok := c.fallback[v.Name]; ok {
			return n
		}
	}
	return 0
}
