package presence

import (
	"context"
	"sort"
	"strings"
)

// VariantKind tags a spelling as a full name or a short code.
type VariantKind int

const (
	KindName VariantKind = iota
	KindCode
)

// Variant is one spelling of a country tried against the upstream.
type Variant struct {
	Name string
	Kind VariantKind
}

// legacyAliases are spellings the mission directory still uses for some
// countries, keyed by lowercased common name.
var legacyAliases = map[string][]string{
	"united states":   {"united states of america", "usa"},
	"united kingdom":  {"great britain", "uk"},
	"russia":          {"russian federation"},
	"south korea":     {"republic of korea", "korea, south"},
	"north korea":     {"democratic people's republic of korea", "korea, north"},
	"czechia":         {"czech republic"},
	"turkey":          {"türkiye", "turkiye"},
	"ivory coast":     {"côte d'ivoire", "cote d'ivoire"},
	"iran":            {"islamic republic of iran"},
	"vietnam":         {"viet nam"},
	"syria":           {"syrian arab republic"},
	"laos":            {"lao people's democratic republic"},
	"myanmar":         {"burma"},
	"eswatini":        {"swaziland"},
	"north macedonia": {"macedonia"},
	"dr congo":        {"democratic republic of the congo", "congo, democratic republic"},
	"cape verde":      {"cabo verde"},
	"bolivia":         {"plurinational state of bolivia"},
	"venezuela":       {"bolivarian republic of venezuela"},
	"tanzania":        {"united republic of tanzania"},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// variants expands a country into the spellings worth trying: the raw input,
// the resolved common name and its legacy aliases, then the ISO2 and ISO3
// codes. Full names come before codes; order is otherwise preserved.
// Resolution failures leave just the raw input.
func (c *Cache) variants(ctx context.Context, raw string) []Variant {
	raw = normalize(raw)
	list := []Variant{{Name: raw, Kind: KindName}}

	profile, err := c.resolver.Resolve(ctx, raw)
	if err != nil || profile == nil {
		if err != nil && ctx.Err() == nil {
			c.log.Debug("variant expansion fell back to raw input", "country", raw, "err", err)
		}
		if isShortCode(raw) {
			list[0].Kind = KindCode
		}
		return list
	}

	iso2, iso3 := normalize(profile.ISO2), normalize(profile.ISO3)
	if raw == iso2 || raw == iso3 {
		list[0].Kind = KindCode
	}

	common := normalize(profile.CommonName)
	list = append(list, Variant{Name: common, Kind: KindName})
	for _, alias := range legacyAliases[common] {
		list = append(list, Variant{Name: alias, Kind: KindName})
	}
	list = append(list,
		Variant{Name: iso2, Kind: KindCode},
		Variant{Name: iso3, Kind: KindCode},
	)

	return orderVariants(list)
}

// orderVariants drops blanks and duplicates, then moves names ahead of codes.
func orderVariants(list []Variant) []Variant {
	seen := make(map[string]bool, len(list))
	out := make([]Variant, 0, len(list))
	for _, v := range list {
		if v.Name == "" || seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func isShortCode(s string) bool {
	if len(s) != 2 && len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
