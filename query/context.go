package query

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/synth"
)

var progressTrends = []string{"plateau", "improving", "fatigue_signals"}

// userContext is the per-user view the prompt templates draw from.
type userContext struct {
	userID        string
	dateOfBirth   string
	sex           string
	activityLevel string
	primaryGoal   string
	conditions    []string
	workoutCount  int
	avgReps       float64
	avgWeight     float64
	avgRIR        float64
}

func knownPromptType(pt string) bool {
	switch pt {
	case "plan_creation", "plan_modification", "safety_adjustment", "progress_adaptation":
		return true
	}
	return false
}

// scenarioPrompt renders one prompt. Only progress_adaptation consumes
// randomness, for its trend pick.
func scenarioPrompt(promptType string, ctx userContext, rng *fitsynth.RNG) (string, []string, error) {
	goal := ctx.primaryGoal
	if goal == "" {
		goal = "general_fitness"
	}
	condText := "none"
	if len(ctx.conditions) > 0 {
		condText = strings.Join(ctx.conditions, ", ")
	}

	constraints := []string{"avoid unsafe load spikes", "prioritize progressive overload"}
	if len(ctx.conditions) > 0 {
		constraints = append(constraints, "respect medical constraints and low-impact alternatives")
	}

	switch promptType {
	case "plan_creation":
		return fmt.Sprintf(
			"Create a 7-day workout plan for a user with goal '%s', activity level '%s', conditions: %s. Include sets, reps, RIR, and rest guidance.",
			goal, ctx.activityLevel, condText,
		), constraints, nil
	case "plan_modification":
		return fmt.Sprintf(
			"Modify an existing plan for user goal '%s'. Recent averages: reps=%.1f, weight=%.1f kg, RIR=%.1f. Adjust intensity and exercise order for next week.",
			goal, ctx.avgReps, ctx.avgWeight, ctx.avgRIR,
		), constraints, nil
	case "safety_adjustment":
		return fmt.Sprintf(
			"Given conditions %s, produce safer substitutions and loading limits for a workout plan. Highlight contraindicated movements and alternatives.",
			condText,
		), constraints, nil
	case "progress_adaptation":
		return fmt.Sprintf(
			"User trend is '%s' with goal '%s'. Propose progression or deload adjustments for the next 2 weeks, and explain why.",
			rng.Pick(progressTrends), goal,
		), constraints, nil
	}
	return "", nil, fmt.Errorf("%w: %s", fitsynth.ErrUnknownPromptType, promptType)
}

// computeAge is the user's age in whole years as of now, floored at 18.
func computeAge(dobStr string, now time.Time) (int, error) {
	dob, err := time.Parse(fitsynth.DateLayout, dobStr)
	if err != nil {
		return 0, fmt.Errorf("parsing date_of_birth %q: %v", dobStr, err)
	}
	age := now.Year() - dob.Year()
	if int(now.Month()) < int(dob.Month()) ||
		(now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 18 {
		age = 18
	}
	return age, nil
}

func ageBand(age int) string {
	switch {
	case age < 25:
		return "18-24"
	case age < 35:
		return "25-34"
	case age < 45:
		return "35-44"
	case age < 55:
		return "45-54"
	}
	return "55+"
}

// buildUserContexts joins the latest profile and workout runs into one
// context row per user, in users.csv order.
func buildUserContexts(rawRoot string) ([]userContext, SourceRunIDs, error) {
	var sources SourceRunIDs

	var profilesLatest, workoutsLatest synth.Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetProfiles, &profilesLatest); err != nil {
		return nil, sources, err
	}
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetWorkouts, &workoutsLatest); err != nil {
		return nil, sources, err
	}
	sources = SourceRunIDs{
		SyntheticProfiles: profilesLatest.RunID,
		SyntheticWorkouts: workoutsLatest.RunID,
	}

	tables := make(map[string]*fitsynth.CSVTable)
	load := func(runDir string, names []string) error {
		for _, name := range names {
			t, err := fitsynth.ReadCSV(filepath.Join(runDir, name+".csv"))
			if err != nil {
				return err
			}
			tables[name] = t
		}
		return nil
	}
	if err := load(profilesLatest.RunDir, []string{
		"users", "user_profiles", "goals", "user_goals", "conditions", "user_conditions",
	}); err != nil {
		return nil, sources, err
	}
	if err := load(workoutsLatest.RunDir, []string{
		"workouts", "workout_exercises", "workout_sets",
	}); err != nil {
		return nil, sources, err
	}

	goalName := nameByID(tables["goals"], "goal_id", "name")
	condName := nameByID(tables["conditions"], "condition_id", "name")

	// Highest-priority goal per user.
	userGoals := tables["user_goals"]
	bestPriority := make(map[string]int)
	primaryGoal := make(map[string]string)
	for i, row := range userGoals.Rows {
		userID := userGoals.Value(row, "user_id")
		priority, err := strconv.Atoi(userGoals.Value(row, "priority"))
		if err != nil {
			return nil, sources, fmt.Errorf("parsing user_goals row %d priority: %w", i, err)
		}
		if cur, ok := bestPriority[userID]; !ok || priority < cur {
			bestPriority[userID] = priority
			primaryGoal[userID] = goalName[userGoals.Value(row, "goal_id")]
		}
	}

	// Sorted unique condition names per user.
	userConditions := tables["user_conditions"]
	condSet := make(map[string]map[string]bool)
	for _, row := range userConditions.Rows {
		userID := userConditions.Value(row, "user_id")
		name := condName[userConditions.Value(row, "condition_id")]
		if name == "" {
			continue
		}
		if condSet[userID] == nil {
			condSet[userID] = make(map[string]bool)
		}
		condSet[userID][name] = true
	}

	workouts := tables["workouts"]
	workoutCount := make(map[string]int)
	workoutUser := make(map[string]string, len(workouts.Rows))
	for _, row := range workouts.Rows {
		userID := workouts.Value(row, "user_id")
		workoutCount[userID]++
		workoutUser[workouts.Value(row, "workout_id")] = userID
	}

	workoutExercises := tables["workout_exercises"]
	exerciseWorkout := make(map[string]string, len(workoutExercises.Rows))
	for _, row := range workoutExercises.Rows {
		exerciseWorkout[workoutExercises.Value(row, "workout_exercise_id")] = workoutExercises.Value(row, "workout_id")
	}

	type perfAgg struct {
		n                 int
		reps, weight, rir float64
	}
	perf := make(map[string]*perfAgg)
	workoutSets := tables["workout_sets"]
	for i, row := range workoutSets.Rows {
		userID := workoutUser[exerciseWorkout[workoutSets.Value(row, "workout_exercise_id")]]
		if userID == "" {
			continue
		}
		reps, err := strconv.ParseFloat(workoutSets.Value(row, "reps"), 64)
		if err != nil {
			return nil, sources, fmt.Errorf("parsing workout_sets row %d reps: %w", i, err)
		}
		weight, err := strconv.ParseFloat(workoutSets.Value(row, "weight"), 64)
		if err != nil {
			return nil, sources, fmt.Errorf("parsing workout_sets row %d weight: %w", i, err)
		}
		rir, err := strconv.ParseFloat(workoutSets.Value(row, "rir"), 64)
		if err != nil {
			return nil, sources, fmt.Errorf("parsing workout_sets row %d rir: %w", i, err)
		}
		agg := perf[userID]
		if agg == nil {
			agg = &perfAgg{}
			perf[userID] = agg
		}
		agg.n++
		agg.reps += reps
		agg.weight += weight
		agg.rir += rir
	}

	profileByUser := make(map[string][]string)
	userProfiles := tables["user_profiles"]
	for _, row := range userProfiles.Rows {
		profileByUser[userProfiles.Value(row, "user_id")] = row
	}

	users := tables["users"]
	contexts := make([]userContext, 0, len(users.Rows))
	for _, row := range users.Rows {
		userID := users.Value(row, "user_id")
		ctx := userContext{
			userID:       userID,
			primaryGoal:  primaryGoal[userID],
			conditions:   []string{},
			workoutCount: workoutCount[userID],
		}
		if profile, ok := profileByUser[userID]; ok {
			ctx.dateOfBirth = userProfiles.Value(profile, "date_of_birth")
			ctx.sex = userProfiles.Value(profile, "sex")
			ctx.activityLevel = userProfiles.Value(profile, "activity_level")
		}
		for name := range condSet[userID] {
			ctx.conditions = append(ctx.conditions, name)
		}
		sort.Strings(ctx.conditions)
		if agg := perf[userID]; agg != nil && agg.n > 0 {
			n := float64(agg.n)
			ctx.avgReps = agg.reps / n
			ctx.avgWeight = agg.weight / n
			ctx.avgRIR = agg.rir / n
		}
		contexts = append(contexts, ctx)
	}
	return contexts, sources, nil
}

func nameByID(t *fitsynth.CSVTable, idCol, nameCol string) map[string]string {
	out := make(map[string]string, len(t.Rows))
	for _, row := range t.Rows {
		out[t.Value(row, idCol)] = t.Value(row, nameCol)
	}
	return out
}
