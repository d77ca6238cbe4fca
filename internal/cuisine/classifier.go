// Package cuisine derives a cuisine category for places ingested from the provider.
package cuisine

import "strings"

const Other = "Other"

// Rule maps a set of name keywords to a category. A rule matches when any
// keyword is a substring of the lowercased name, or any address keyword is a
// substring of the lowercased address.
type Rule struct {
	Category        string
	NameKeywords    []string
	AddressKeywords []string
}

// DefaultRules is evaluated top to bottom; the first matching rule wins.
var DefaultRules = []Rule{
	{Category: "Indian", NameKeywords: []string{"bhojanalaya", "dhaba", "hotel", "restaurant", "kathiyawadi", "gujarati", "punjabi", "south indian", "north indian"}, AddressKeywords: []string{"india"}},
	{Category: "Italian", NameKeywords: []string{"pizza", "pasta", "italian", "trattoria", "ristorante", "gusto"}},
	{Category: "Chinese", NameKeywords: []string{"chinese", "wok", "dragon", "panda", "bamboo"}},
	{Category: "Mexican", NameKeywords: []string{"mexican", "taco", "burrito", "margarita", "cantina"}},
	{Category: "Japanese", NameKeywords: []string{"sushi", "japanese", "ramen", "tempura", "sake"}},
	{Category: "American", NameKeywords: []string{"burger", "grill", "steak", "bbq", "american", "chop steakhouse", "carbon bar"}},
	{Category: "Thai", NameKeywords: []string{"thai", "pad thai", "curry", "spicy"}},
	{Category: "French", NameKeywords: []string{"french", "bistro", "cafe", "brasserie"}},
	{Category: "Korean", NameKeywords: []string{"korean", "kimchi", "bbq"}},
	{Category: "Mediterranean", NameKeywords: []string{"mediterranean", "greek", "lebanese", "middle eastern"}},
	{Category: "Bar & Grill", NameKeywords: []string{"bar", "pub", "tavern", "lounge"}},
	{Category: "Fine Dining", NameKeywords: []string{"canoe", "fine dining", "upscale"}},
}

type tagRule struct {
	category string
	tags     []string
}

// provider type tags, consulted only when no keyword rule matched
var defaultTagRules = []tagRule{
	{"Indian", []string{"indian_restaurant"}},
	{"Italian", []string{"italian_restaurant", "pizza_restaurant"}},
	{"Chinese", []string{"chinese_restaurant"}},
	{"Mexican", []string{"mexican_restaurant"}},
	{"Japanese", []string{"japanese_restaurant", "sushi_restaurant", "ramen_restaurant"}},
	{"American", []string{"american_restaurant", "hamburger_restaurant", "steak_house", "barbecue_restaurant"}},
	{"Thai", []string{"thai_restaurant"}},
	{"French", []string{"french_restaurant"}},
	{"Korean", []string{"korean_restaurant"}},
	{"Mediterranean", []string{"mediterranean_restaurant", "greek_restaurant", "lebanese_restaurant", "middle_eastern_restaurant"}},
	{"Bar & Grill", []string{"bar", "pub", "bar_and_grill"}},
	{"Fine Dining", []string{"fine_dining_restaurant"}},
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct {
	rules    []Rule
	tagRules []tagRule
}

func New() *Classifier {
	return &Classifier{rules: DefaultRules, tagRules: defaultTagRules}
}

// NewWithRules builds a classifier over a custom priority list.
func NewWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules, tagRules: defaultTagRules}
}

// Classify returns the category of the first matching rule, or Other.
func (c *Classifier) Classify(name, address string, typeTags []string) string {
	name = strings.ToLower(name)
	address = strings.ToLower(address)

	for _, r := range c.rules {
		if containsAny(name, r.NameKeywords) || containsAny(address, r.AddressKeywords) {
			return r.Category
		}
	}

	if len(typeTags) > 0 {
		tags := make(map[string]struct{}, len(typeTags))
		for _, t := range typeTags {
			tags[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
		for _, r := range c.tagRules {
			for _, t := range r.tags {
				if _, ok := tags[t]; ok {
					return r.category
				}
			}
		}
	}

	return Other
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
