package analysis

// DefaultContinentByCountry maps directory country names to continents for
// the derived continent breakdown. It covers the countries validators are
// commonly hosted in; anything missing falls into OtherContinent. Callers
// that need different naming can inject their own table.
var DefaultContinentByCountry = map[string]string{
	"United States":        "North America",
	"Canada":               "North America",
	"Mexico":               "North America",
	"Panama":               "North America",
	"Brazil":               "South America",
	"Argentina":            "South America",
	"Chile":                "South America",
	"Colombia":             "South America",
	"Germany":              "Europe",
	"Netherlands":          "Europe",
	"Finland":              "Europe",
	"France":               "Europe",
	"United Kingdom":       "Europe",
	"Ireland":              "Europe",
	"Sweden":               "Europe",
	"Norway":               "Europe",
	"Denmark":              "Europe",
	"Poland":               "Europe",
	"Czechia":              "Europe",
	"Czech Republic":       "Europe",
	"Austria":              "Europe",
	"Switzerland":          "Europe",
	"Belgium":              "Europe",
	"Spain":                "Europe",
	"Portugal":             "Europe",
	"Italy":                "Europe",
	"Romania":              "Europe",
	"Bulgaria":             "Europe",
	"Hungary":              "Europe",
	"Slovakia":             "Europe",
	"Slovenia":             "Europe",
	"Croatia":              "Europe",
	"Greece":               "Europe",
	"Estonia":              "Europe",
	"Latvia":               "Europe",
	"Lithuania":            "Europe",
	"Ukraine":              "Europe",
	"Moldova":              "Europe",
	"Serbia":               "Europe",
	"Iceland":              "Europe",
	"Luxembourg":           "Europe",
	"Malta":                "Europe",
	"Cyprus":               "Europe",
	"Russia":               "Europe",
	"Turkey":               "Asia",
	"Israel":               "Asia",
	"United Arab Emirates": "Asia",
	"Saudi Arabia":         "Asia",
	"India":                "Asia",
	"Singapore":            "Asia",
	"Japan":                "Asia",
	"South Korea":          "Asia",
	"Republic of Korea":    "Asia",
	"Taiwan":               "Asia",
	"Hong Kong":            "Asia",
	"China":                "Asia",
	"Thailand":             "Asia",
	"Vietnam":              "Asia",
	"Malaysia":             "Asia",
	"Indonesia":            "Asia",
	"Philippines":          "Asia",
	"Kazakhstan":           "Asia",
	"South Africa":         "Africa",
	"Nigeria":              "Africa",
	"Kenya":                "Africa",
	"Egypt":                "Africa",
	"Morocco":              "Africa",
	"Australia":            "Oceania",
	"New Zealand":          "Oceania",
}
