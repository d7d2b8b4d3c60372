package enrich

// Lookups holds the static classification tables injected into the Enricher.
// They are configuration data, not module state, so tests can substitute
// complete or alternate tables. Crime-type keys use the normalizer's
// canonical form (lowercase, underscores).
type Lookups struct {
	ViolentTypes     map[string]bool
	PropertyTypes    map[string]bool
	DrugTypes        map[string]bool
	PublicOrderTypes map[string]bool
	WeaponTypes      map[string]bool

	ViolentFBICodes  map[string]bool
	PropertyFBICodes map[string]bool

	// FBICategories maps FBI classification code to a category name.
	// Codes absent from the table fall back to "Unknown".
	FBICategories map[string]string

	// SeverityByCategory maps category name to severity 0-5. Categories
	// absent from the table fall back to 0. The table is deliberately
	// incomplete relative to the category vocabulary; the fallback is the
	// documented behavior, not a gap to fill.
	SeverityByCategory map[string]int

	SeverityLabels map[int]string
}

func setOf(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// DefaultLookups returns the production classification tables.
func DefaultLookups() Lookups {
	return Lookups{
		ViolentTypes:     setOf("battery", "assault", "homicide", "robbery", "crim_sexual_assault"),
		PropertyTypes:    setOf("burglary", "theft", "motor_vehicle_theft", "arson"),
		DrugTypes:        setOf("narcotics", "other_narcotic_violation"),
		PublicOrderTypes: setOf("public_peace_violation", "interference_with_public_officer"),
		WeaponTypes:      setOf("weapons_violation", "unlawful_use_of_weapon", "concealed_carry_license_violation"),

		ViolentFBICodes:  setOf("01A", "01B", "02", "03", "04A", "04B"),
		PropertyFBICodes: setOf("05", "06", "07", "08A", "08B", "09", "10", "11", "12", "13"),

		FBICategories: map[string]string{
			"01A": "Homicide", "01B": "Manslaughter", "02": "Sexual Assault", "03": "Robbery",
			"04A": "Aggravated Assault/Battery", "04B": "Simple Assault/Battery", "05": "Burglary",
			"06": "Theft", "07": "Motor Vehicle Theft", "08A": "Arson", "08B": "Criminal Damage",
			"09": "Fraud", "10": "Forgery/Counterfeiting", "11": "Embezzlement", "12": "Stolen Property",
			"13": "Vandalism", "14": "Weapons Violation", "15": "Prostitution", "16": "Sex Offense (Other)",
			"17": "Drug Violation", "18": "Gambling", "19": "Offense Against Family/Children",
			"20": "Driving Offenses", "21": "Liquor Law Violation", "22": "Public Order Crime",
			"24": "Disorderly Conduct", "26": "Miscellaneous Offense",
		},

		SeverityByCategory: map[string]int{
			"Homicide": 5, "Manslaughter": 4, "Sexual Assault": 4, "Robbery": 4,
			"Aggravated Assault/Battery": 4, "Arson": 4, "Burglary": 3, "Motor Vehicle Theft": 3,
			"Weapons Violation": 3, "Drug Violation": 2, "Fraud": 2, "Forgery/Counterfeiting": 2,
			"Disorderly Conduct": 1, "Vandalism": 1, "Public Order Crime": 1, "Miscellaneous Offense": 1,
		},

		SeverityLabels: map[int]string{
			5: "Critical", 4: "High", 3: "Moderate", 2: "Low", 1: "Minor", 0: "Unknown",
		},
	}
}
