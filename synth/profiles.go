package synth

import (
	"fmt"
	"strings"

	"github.com/fitsense/fitsynth"
)

// profileSeedUser carries the per-user state later generators key off.
type profileSeedUser struct {
	id            string
	activityLevel string
}

// GenerateProfiles synthesizes the user, profile, goal, condition,
// medication, allergy and target tables for one run. The same config
// and seed reproduce the run byte for byte.
func GenerateProfiles(cfg fitsynth.Config, rawRoot, runID string) (*Result, error) {
	syn := cfg.Phase2.Synthetic
	seed := cfg.Reproducibility.Seed
	rng := fitsynth.NewRNG(seed)
	asOf := cfg.AsOf()
	asOfStamp := fitsynth.FormatTimestamp(asOf)

	users := newTable("users", "user_id", "name", "email", "created_at")
	userProfiles := newTable("user_profiles",
		"user_id", "date_of_birth", "sex", "height_cm", "activity_level", "updated_at")

	seeds := make([]profileSeedUser, 0, syn.NumUsers)
	for idx := 1; idx <= syn.NumUsers; idx++ {
		userID := fitsynth.StableID("user", fmt.Sprintf("user_%05d", idx))

		first := rng.Pick(firstNames)
		last := rng.Pick(lastNames)
		createdAt := asOf.AddDate(0, 0, -rng.IntBetween(10, 720))
		users.add(
			userID,
			first+" "+last,
			fmt.Sprintf("%s.%s.%d@fitsense.synthetic", strings.ToLower(first), strings.ToLower(last), idx),
			fitsynth.FormatTimestamp(createdAt),
		)

		ageYears := rng.IntBetween(18, 66)
		dob := asOf.AddDate(0, 0, -(ageYears*365 + rng.IntBetween(0, 365)))
		sex := rng.Pick(sexOptions)
		height := fitsynth.Clamp(fitsynth.Round1(rng.Normal(171.0, 10.0)), 145.0, 205.0)
		activity := rng.Pick(activityLevels)
		userProfiles.add(
			userID,
			fitsynth.FormatDate(dob),
			sex,
			fmtFloat(height),
			activity,
			fitsynth.FormatTimestamp(createdAt),
		)

		seeds = append(seeds, profileSeedUser{id: userID, activityLevel: activity})
	}

	goals := newTable("goals", "goal_id", "name", "description")
	goalIDs := make([]string, 0, len(goalCatalog))
	for _, g := range goalCatalog {
		id := fitsynth.StableID("goal", g.name)
		goals.add(id, g.name, g.description)
		goalIDs = append(goalIDs, id)
	}

	userGoals := newTable("user_goals", "user_id", "goal_id", "priority")
	for _, u := range seeds {
		count := rng.IntBetween(1, 3)
		for priority, goalID := range rng.Sample(goalIDs, count) {
			userGoals.add(u.id, goalID, fmtInt(priority+1))
		}
	}

	conditions := newTable("conditions", "condition_id", "name", "description")
	var assignableConditionIDs []string
	for _, c := range conditionCatalog {
		id := fitsynth.StableID("condition", c.name)
		conditions.add(id, c.name, c.description)
		if c.name != "none" {
			assignableConditionIDs = append(assignableConditionIDs, id)
		}
	}

	userConditions := newTable("user_conditions", "user_id", "condition_id", "severity", "notes")
	medicalProfiles := newTable("user_medical_profiles",
		"medical_profile_id", "user_id", "has_injuries", "injury_details",
		"surgeries_history", "family_history", "notes", "updated_at")
	for _, u := range seeds {
		hasInjuries := rng.Float64() < 0.25
		injuryDetails := ""
		if hasInjuries {
			injuryDetails = "knee strain"
		}
		medicalProfiles.add(
			fitsynth.StableID("medical_profile", u.id),
			u.id,
			fmtBool(hasInjuries),
			injuryDetails,
			"",
			"",
			"synthetic_record",
			asOfStamp,
		)

		count := rng.IntBetween(0, syn.Profiles.MaxConditionsPerUser+1)
		if count == 0 {
			continue
		}
		for _, conditionID := range rng.Sample(assignableConditionIDs, count) {
			userConditions.add(u.id, conditionID, rng.Pick(severities), "synthetic_condition")
		}
	}

	medications := newTable("user_medications",
		"medication_id", "user_id", "medication_name", "dosage",
		"frequency", "start_date", "end_date", "notes")
	for _, u := range seeds {
		count := rng.IntBetween(0, syn.Profiles.MaxMedicationsPerUser+1)
		for idx := 0; idx < count; idx++ {
			name := rng.Pick(medicationNames)
			medications.add(
				fitsynth.StableID("medication", fmt.Sprintf("%s:%d:%s", u.id, idx, name)),
				u.id,
				name,
				fmt.Sprintf("%d mg", rng.IntBetween(5, 501)),
				rng.Pick(medicationFrequencies),
				"2025-01-01",
				"",
				"synthetic_medication",
			)
		}
	}

	allergies := newTable("user_allergies",
		"allergy_id", "user_id", "allergen", "reaction", "severity", "notes")
	for _, u := range seeds {
		count := rng.IntBetween(0, syn.Profiles.MaxAllergiesPerUser+1)
		for idx := 0; idx < count; idx++ {
			allergen := rng.Pick(allergens)
			allergies.add(
				fitsynth.StableID("allergy", fmt.Sprintf("%s:%d:%s", u.id, idx, allergen)),
				u.id,
				allergen,
				rng.Pick(allergyReactions),
				rng.Pick(severities),
				"synthetic_allergy",
			)
		}
	}

	calorieTargets := newTable("calorie_targets",
		"calorie_target_id", "user_id", "maintenance_calories", "method",
		"effective_from", "effective_to", "notes", "created_at")
	sleepTargets := newTable("sleep_targets",
		"sleep_target_id", "user_id", "target_sleep_hours",
		"effective_from", "effective_to", "notes", "created_at")
	for _, u := range seeds {
		maintenance := 2200 + calorieLevelAdjustment[u.activityLevel] + rng.IntBetween(-150, 151)
		maintenance = fitsynth.ClampInt(maintenance, 1400, 3800)
		calorieTargets.add(
			fitsynth.StableID("calorie_target", u.id),
			u.id,
			fmtInt(maintenance),
			"synthetic_estimate",
			fitsynth.FormatDate(asOf),
			"",
			"synthetic_target",
			asOfStamp,
		)

		sleepHours := fitsynth.Clamp(fitsynth.Round2(rng.Normal(7.6, 0.6)), 6.0, 9.5)
		sleepTargets.add(
			fitsynth.StableID("sleep_target", u.id),
			u.id,
			fmtFloat(sleepHours),
			fitsynth.FormatDate(asOf),
			"",
			"synthetic_target",
			asOfStamp,
		)
	}

	tables := []*table{
		users, userProfiles, goals, userGoals, conditions, userConditions,
		medicalProfiles, medications, allergies, calorieTargets, sleepTargets,
	}

	runDir := fitsynth.RunDir(rawRoot, fitsynth.DatasetProfiles, runID)
	counts, err := writeTables(runDir, tables)
	if err != nil {
		return nil, err
	}

	latest := Latest{
		RunID:       runID,
		RunDir:      runDir,
		Seed:        seed,
		AsOfDate:    syn.AsOfDate,
		TableCounts: counts,
	}
	if err := fitsynth.PublishLatest(rawRoot, fitsynth.DatasetProfiles, latest); err != nil {
		return nil, err
	}

	return &Result{RunID: runID, RunDir: runDir, Counts: counts}, nil
}
