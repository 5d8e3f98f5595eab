// Package domain models road weather station telemetry published by the
// Lithuanian road administration at eismoinfo.lt.
//
// # Data Source
//
// Two endpoints feed the service. The current snapshot
// (/weather-conditions-service/) returns one report per station, each carrying
// the station's id, coordinates and descriptive labels. The retrospective
// endpoint (/weather-conditions-retrospective/?id=&number=) returns up to
// "number" reports for one station, newest first, with the same field shape.
//
// # Source Conventions
//
// Field names are Lithuanian and fixed:
//
//	id                  station external id
//	surinkimo_data_unix collection time, unix seconds
//	surinkimo_data      collection time, "2006-01-02 15:04" local wall clock
//	kelio_danga         surface condition label
//	oro_temperatura     air temperature, °C
//	dangos_temperatura  surface temperature, °C
//	matomumas           visibility, m
//	vejo_kryptis        wind direction label ("Šiaurės", "Pietvakarių", "-")
//	vejo_greitis_vidut  average wind speed, m/s
//	vejo_greitis_maks   maximum wind speed, m/s
//	krituliu_tipas      precipitation type label
//	krituliu_kiekis     precipitation amount, mm
//	rasos_taskas        dew point, °C
//	uzsalimo_taskas     frost point, °C
//
// Snapshot entries additionally carry lat, lng, irenginys (city),
// pavadinimas (road name) and numeris (road number).
//
// Local times are Europe/Vilnius wall clock (EET/EEST). Numbers may arrive
// as JSON numbers or numeric strings; both are accepted. A JSON null leaves
// the field unset.
//
// # Category Labels
//
// Surface condition, wind direction and precipitation type arrive as free
// text. They are mapped to integer codes (WMO 4680 style for precipitation,
// compass degrees for wind) through a curated table. Labels missing from the
// table are recorded with a null code for manual assignment and the report
// batch that carried them is withheld from storage until the next cycle.
package domain
