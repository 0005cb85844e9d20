package geo

import "github.com/steliosspap/Argos-public-sub005/internal/config"

// builtin covers frequently reported theatres. Deployments extend it with geo.places.
var builtin = []config.Place{
	{Name: "Ukraine", Country: "UA", Lat: 48.38, Lon: 31.17},
	{Name: "Kyiv", Aliases: []string{"Kiev"}, Country: "UA", Region: "Kyiv", Lat: 50.45, Lon: 30.52},
	{Name: "Kharkiv", Aliases: []string{"Kharkov"}, Country: "UA", Region: "Kharkiv", Lat: 49.99, Lon: 36.23},
	{Name: "Donetsk", Country: "UA", Region: "Donetsk", Lat: 48.02, Lon: 37.80},
	{Name: "Bakhmut", Country: "UA", Region: "Donetsk", Lat: 48.60, Lon: 38.00},
	{Name: "Pokrovsk", Country: "UA", Region: "Donetsk", Lat: 48.28, Lon: 37.18},
	{Name: "Luhansk", Country: "UA", Region: "Luhansk", Lat: 48.57, Lon: 39.31},
	{Name: "Zaporizhzhia", Aliases: []string{"Zaporizhia"}, Country: "UA", Region: "Zaporizhzhia", Lat: 47.84, Lon: 35.14},
	{Name: "Kherson", Country: "UA", Region: "Kherson", Lat: 46.64, Lon: 32.62},
	{Name: "Odesa", Aliases: []string{"Odessa"}, Country: "UA", Region: "Odesa", Lat: 46.48, Lon: 30.72},
	{Name: "Russia", Country: "RU", Lat: 61.52, Lon: 105.32},
	{Name: "Belgorod", Country: "RU", Region: "Belgorod", Lat: 50.60, Lon: 36.59},
	{Name: "Kursk", Country: "RU", Region: "Kursk", Lat: 51.73, Lon: 36.19},
	{Name: "Gaza", Aliases: []string{"Gaza Strip", "Gaza City"}, Country: "PS", Region: "Gaza", Lat: 31.50, Lon: 34.47},
	{Name: "Rafah", Country: "PS", Region: "Gaza", Lat: 31.30, Lon: 34.25},
	{Name: "Khan Younis", Aliases: []string{"Khan Yunis"}, Country: "PS", Region: "Gaza", Lat: 31.35, Lon: 34.31},
	{Name: "West Bank", Country: "PS", Region: "West Bank", Lat: 31.95, Lon: 35.30},
	{Name: "Jenin", Country: "PS", Region: "West Bank", Lat: 32.46, Lon: 35.30},
	{Name: "Israel", Country: "IL", Lat: 31.05, Lon: 34.85},
	{Name: "Lebanon", Country: "LB", Lat: 33.85, Lon: 35.86},
	{Name: "South Lebanon", Aliases: []string{"southern Lebanon"}, Country: "LB", Region: "South", Lat: 33.27, Lon: 35.20},
	{Name: "Syria", Country: "SY", Lat: 34.80, Lon: 38.99},
	{Name: "Aleppo", Country: "SY", Region: "Aleppo", Lat: 36.20, Lon: 37.13},
	{Name: "Idlib", Country: "SY", Region: "Idlib", Lat: 35.93, Lon: 36.63},
	{Name: "Yemen", Country: "YE", Lat: 15.55, Lon: 48.52},
	{Name: "Sanaa", Aliases: []string{"Sana'a"}, Country: "YE", Region: "Sanaa", Lat: 15.37, Lon: 44.19},
	{Name: "Hodeidah", Country: "YE", Region: "Hodeidah", Lat: 14.80, Lon: 42.95},
	{Name: "Sudan", Country: "SD", Lat: 12.86, Lon: 30.22},
	{Name: "Khartoum", Country: "SD", Region: "Khartoum", Lat: 15.50, Lon: 32.56},
	{Name: "Darfur", Country: "SD", Region: "Darfur", Lat: 13.50, Lon: 24.00},
	{Name: "El Fasher", Aliases: []string{"al-Fashir"}, Country: "SD", Region: "Darfur", Lat: 13.63, Lon: 25.35},
	{Name: "Myanmar", Aliases: []string{"Burma"}, Country: "MM", Lat: 21.91, Lon: 95.96},
	{Name: "Goma", Country: "CD", Region: "North Kivu", Lat: -1.68, Lon: 29.22},
	{Name: "North Kivu", Country: "CD", Region: "North Kivu", Lat: -0.79, Lon: 29.05},
	{Name: "Somalia", Country: "SO", Lat: 5.15, Lon: 46.20},
	{Name: "Mogadishu", Country: "SO", Region: "Banadir", Lat: 2.05, Lon: 45.32},
	{Name: "Mali", Country: "ML", Lat: 17.57, Lon: -3.99},
}
