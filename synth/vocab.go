package synth

// catalogEntry pairs a reference-table name with its description.
type catalogEntry struct {
	name        string
	description string
}

type equipmentEntry struct {
	name     string
	category string
}

type exerciseEntry struct {
	name          string
	primaryMuscle string
}

var goalCatalog = []catalogEntry{
	{"fat_loss", "Reduce body fat while preserving lean mass."},
	{"muscle_gain", "Increase muscle mass progressively."},
	{"strength", "Improve compound lift performance."},
	{"general_fitness", "Improve overall health and activity consistency."},
}

var conditionCatalog = []catalogEntry{
	{"none", "No known chronic medical condition."},
	{"hypertension", "Elevated blood pressure requiring monitoring."},
	{"type2_diabetes", "Type 2 diabetes managed with lifestyle/medication."},
	{"asthma", "Respiratory condition with intermittent symptoms."},
	{"lower_back_pain", "Recurring lower back pain requiring exercise modifications."},
	{"knee_pain", "Chronic knee discomfort requiring movement constraints."},
}

var activityLevels = []string{"sedentary", "light", "moderate", "active", "very_active"}

var sexOptions = []string{"male", "female", "non_binary"}

var severities = []string{"mild", "moderate", "high"}

var firstNames = []string{
	"Alex", "Jordan", "Taylor", "Riley", "Casey",
	"Sam", "Avery", "Drew", "Morgan", "Jamie",
}

var lastNames = []string{
	"Shah", "Kim", "Patel", "Singh", "Brown",
	"Chen", "Garcia", "Miller", "Johnson", "Nguyen",
}

var medicationNames = []string{"Metformin", "Lisinopril", "Albuterol", "Ibuprofen"}

var medicationFrequencies = []string{"daily", "twice_daily", "as_needed"}

var allergens = []string{"peanuts", "shellfish", "lactose", "pollen", "dust"}

var allergyReactions = []string{"rash", "swelling", "digestive discomfort", "sneezing"}

var equipmentCatalog = []equipmentEntry{
	{"barbell", "free_weights"},
	{"dumbbell", "free_weights"},
	{"bench", "support"},
	{"pullup_bar", "bodyweight"},
	{"cable_machine", "machine"},
	{"kettlebell", "free_weights"},
	{"resistance_band", "accessory"},
}

var exerciseCatalog = []exerciseEntry{
	{"Barbell Back Squat", "quads"},
	{"Barbell Bench Press", "chest"},
	{"Deadlift", "posterior_chain"},
	{"Overhead Press", "shoulders"},
	{"Bent Over Row", "back"},
	{"Romanian Deadlift", "hamstrings"},
	{"Walking Lunge", "quads"},
	{"Lat Pulldown", "back"},
	{"Push Up", "chest"},
	{"Plank", "core"},
	{"Leg Press", "quads"},
	{"Seated Cable Row", "back"},
}

// calorieLevelAdjustment shifts maintenance calories by activity level.
var calorieLevelAdjustment = map[string]int{
	"sedentary":   -250,
	"light":       -100,
	"moderate":    0,
	"active":      200,
	"very_active": 350,
}
