package terminology

// curated LOINC mappings for common lab tests and vital signs, keyed
// case-insensitively on the free-text test name found in source files.
var loincMappings = map[string]concept{
	// Hematology
	"hemoglobin":             {"718-7", "Hemoglobin [Mass/volume] in Blood"},
	"hb":                     {"718-7", "Hemoglobin [Mass/volume] in Blood"},
	"hgb":                    {"718-7", "Hemoglobin [Mass/volume] in Blood"},
	"hematocrit":             {"4544-3", "Hematocrit [Volume Fraction] of Blood by Automated count"},
	"hct":                    {"4544-3", "Hematocrit [Volume Fraction] of Blood by Automated count"},
	"white blood cell count": {"6690-2", "Leukocytes [#/volume] in Blood by Automated count"},
	"wbc":                    {"6690-2", "Leukocytes [#/volume] in Blood by Automated count"},
	"red blood cell count":   {"789-8", "Erythrocytes [#/volume] in Blood by Automated count"},
	"rbc":                    {"789-8", "Erythrocytes [#/volume] in Blood by Automated count"},
	"platelet count":         {"777-3", "Platelets [#/volume] in Blood by Automated count"},
	"plt":                    {"777-3", "Platelets [#/volume] in Blood by Automated count"},

	// Chemistry
	"glucose":             {"2345-7", "Glucose [Mass/volume] in Serum or Plasma"},
	"blood glucose":       {"2345-7", "Glucose [Mass/volume] in Serum or Plasma"},
	"creatinine":          {"2160-0", "Creatinine [Mass/volume] in Serum or Plasma"},
	"blood urea nitrogen": {"3094-0", "Urea nitrogen [Mass/volume] in Serum or Plasma"},
	"bun":                 {"3094-0", "Urea nitrogen [Mass/volume] in Serum or Plasma"},
	"sodium":              {"2951-2", "Sodium [Moles/volume] in Serum or Plasma"},
	"potassium":           {"2823-3", "Potassium [Moles/volume] in Serum or Plasma"},
	"chloride":            {"2075-0", "Chloride [Moles/volume] in Serum or Plasma"},
	"total cholesterol":   {"2093-3", "Cholesterol [Mass/volume] in Serum or Plasma"},
	"cholesterol":         {"2093-3", "Cholesterol [Mass/volume] in Serum or Plasma"},
	"hdl cholesterol":     {"2085-9", "Cholesterol in HDL [Mass/volume] in Serum or Plasma"},
	"ldl cholesterol":     {"2089-1", "Cholesterol in LDL [Mass/volume] in Serum or Plasma"},
	"triglycerides":       {"2571-8", "Triglyceride [Mass/volume] in Serum or Plasma"},

	// Liver function
	"alt":             {"1742-6", "Alanine aminotransferase [Enzymatic activity/volume] in Serum or Plasma"},
	"ast":             {"1920-8", "Aspartate aminotransferase [Enzymatic activity/volume] in Serum or Plasma"},
	"bilirubin total": {"1975-2", "Bilirubin.total [Mass/volume] in Serum or Plasma"},
	"total bilirubin": {"1975-2", "Bilirubin.total [Mass/volume] in Serum or Plasma"},

	// Vitals
	"blood pressure systolic":  {"8480-6", "Systolic blood pressure"},
	"systolic bp":              {"8480-6", "Systolic blood pressure"},
	"blood pressure diastolic": {"8462-4", "Diastolic blood pressure"},
	"diastolic bp":             {"8462-4", "Diastolic blood pressure"},
	"heart rate":               {"8867-4", "Heart rate"},
	"pulse":                    {"8867-4", "Heart rate"},
	"body temperature":         {"8310-5", "Body temperature"},
	"temperature":              {"8310-5", "Body temperature"},
	"respiratory rate":         {"9279-1", "Respiratory rate"},
	"weight":                   {"29463-7", "Body weight"},
	"height":                   {"8302-2", "Body height"},
	"bmi":                      {"39156-5", "Body mass index (BMI) [Ratio]"},
	"oxygen saturation":        {"2708-6", "Oxygen saturation in Arterial blood"},
}

// curated UCUM unit mappings, keyed case-insensitively on the source unit
// string. Values are the normalized UCUM code and a human-readable display.
var ucumMappings = map[string]concept{
	// Mass/volume
	"g/dl":  {"g/dL", "gram per deciliter"},
	"mg/dl": {"mg/dL", "milligram per deciliter"},
	"mg/l":  {"mg/L", "milligram per liter"},
	"g/l":   {"g/L", "gram per liter"},
	"ng/ml": {"ng/mL", "nanogram per milliliter"},
	"pg/ml": {"pg/mL", "picogram per milliliter"},
	"ug/dl": {"ug/dL", "microgram per deciliter"},
	"ug/l":  {"ug/L", "microgram per liter"},

	// Moles/volume
	"mmol/l": {"mmol/L", "millimole per liter"},
	"umol/l": {"umol/L", "micromole per liter"},
	"meq/l":  {"meq/L", "milliequivalent per liter"},

	// Count/volume
	"10*3/ul":  {"10*3/uL", "thousand per microliter"},
	"10*6/ul":  {"10*6/uL", "million per microliter"},
	"/ul":      {"/uL", "per microliter"},
	"cells/ul": {"/uL", "per microliter"},

	// Enzymatic activity
	"u/l":  {"U/L", "unit per liter"},
	"iu/l": {"[IU]/L", "international unit per liter"},

	// Pressure
	"mm[hg]": {"mm[Hg]", "millimeter of mercury"},
	"mmhg":   {"mm[Hg]", "millimeter of mercury"},

	// Rate
	"bpm":       {"/min", "per minute"},
	"/min":      {"/min", "per minute"},
	"beats/min": {"/min", "per minute"},

	// Temperature
	"cel":    {"Cel", "degree Celsius"},
	"°c":     {"Cel", "degree Celsius"},
	"degc":   {"Cel", "degree Celsius"},
	"[degf]": {"[degF]", "degree Fahrenheit"},
	"°f":     {"[degF]", "degree Fahrenheit"},

	// Physical measurements
	"kg": {"kg", "kilogram"},
	"lb": {"[lb_av]", "pound"},
	"cm": {"cm", "centimeter"},
	"m":  {"m", "meter"},
	"in": {"[in_i]", "inch"},
	"ft": {"[ft_i]", "foot"},

	// Percentage
	"%":       {"%", "percent"},
	"percent": {"%", "percent"},

	// Ratio
	"kg/m2":  {"kg/m2", "kilogram per square meter"},
	"kg/m^2": {"kg/m2", "kilogram per square meter"},
}
