package models

// RegistryEntry is one row of the aircraft registry dataset, trimmed to the columns
// used to classify live traffic
type RegistryEntry struct {
	ICAO24              string // Primary key - 6 hex digit ICAO address
	Registration        string // e.g. XA-ABC
	TypeCode            string // ICAO type designator
	ManufacturerName    string
	Model               string
	Operator            string
	OperatorCallsign    string
	OperatorICAO        string // 3 letter airline designator
	CategoryDescription string
}
