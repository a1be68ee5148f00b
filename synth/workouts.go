package synth

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/fitsense/fitsynth"
)

type planSetSpec struct {
	setNumber int
}

type planExerciseSpec struct {
	id           string
	exerciseID   string
	position     int
	targetReps   int
	targetWeight float64
	targetRIR    int
	sets         []planSetSpec
}

type planSpec struct {
	id        string
	userID    string
	exercises []planExerciseSpec
}

// GenerateWorkouts synthesizes the exercise catalog, one progressive
// plan per user, the executed sessions against that plan, and the daily
// calorie, sleep and weight logs. It requires a published profiles run
// and draws from its own seed stream (profile seed + 1).
func GenerateWorkouts(cfg fitsynth.Config, rawRoot, runID string) (*Result, error) {
	syn := cfg.Phase2.Synthetic
	seed := cfg.Reproducibility.Seed + 1
	rng := fitsynth.NewRNG(seed)
	asOf := cfg.AsOf()
	asOfStamp := fitsynth.FormatTimestamp(asOf)
	lookback := syn.LookbackDays

	inputs, err := loadProfileTables(rawRoot)
	if err != nil {
		return nil, err
	}
	users := inputs["users"]
	userIDs := make([]string, 0, len(users.Rows))
	for _, row := range users.Rows {
		userIDs = append(userIDs, users.Value(row, "user_id"))
	}

	// Reference catalog.
	equipment := newTable("equipment", "equipment_id", "name", "category")
	equipmentIDs := make([]string, 0, len(equipmentCatalog))
	for _, e := range equipmentCatalog {
		id := fitsynth.StableID("equipment", e.name)
		equipment.add(id, e.name, e.category)
		equipmentIDs = append(equipmentIDs, id)
	}

	exercises := newTable("exercises", "exercise_id", "name", "primary_muscle", "notes")
	exerciseEquipment := newTable("exercise_equipment", "exercise_id", "equipment_id")
	exerciseIDs := make([]string, 0, len(exerciseCatalog))
	for _, ex := range exerciseCatalog {
		id := fitsynth.StableID("exercise", ex.name)
		exercises.add(id, ex.name, ex.primaryMuscle, "synthetic_exercise")
		exerciseEquipment.add(id, rng.Pick(equipmentIDs))
		exerciseIDs = append(exerciseIDs, id)
	}

	// One active plan per user.
	workoutPlans := newTable("workout_plans", "plan_id", "user_id", "name", "is_active", "created_at")
	planExercises := newTable("plan_exercises",
		"plan_exercise_id", "plan_id", "exercise_id", "position", "notes")
	planSets := newTable("plan_sets",
		"plan_set_id", "plan_exercise_id", "set_number",
		"target_reps", "target_weight", "target_rir", "rest_seconds")

	plans := make([]planSpec, 0, len(userIDs))
	for _, userID := range userIDs {
		planID := fitsynth.StableID("plan", userID)
		createdAt := asOf.AddDate(0, 0, -rng.IntBetween(20, 200))
		workoutPlans.add(planID, userID, "Synthetic Progressive Plan",
			fmtBool(true), fitsynth.FormatTimestamp(createdAt))

		count := rng.IntBetween(syn.Workouts.MinExercisesPerPlan, syn.Workouts.MaxExercisesPerPlan+1)
		spec := planSpec{id: planID, userID: userID}
		for i, exerciseID := range rng.Sample(exerciseIDs, count) {
			position := i + 1
			peID := fitsynth.StableID("plan_exercise", fmt.Sprintf("%s:%s:%d", planID, exerciseID, position))
			planExercises.add(peID, planID, exerciseID, fmtInt(position), "synthetic_plan_exercise")

			pe := planExerciseSpec{
				id:           peID,
				exerciseID:   exerciseID,
				position:     position,
				targetWeight: fitsynth.Clamp(fitsynth.Round1(rng.Normal(42, 18)), 10.0, 140.0),
				targetReps:   rng.IntBetween(6, 13),
				targetRIR:    rng.IntBetween(1, 4),
			}
			for setNumber := 1; setNumber <= syn.Workouts.SetsPerExercise; setNumber++ {
				planSets.add(
					fitsynth.StableID("plan_set", fmt.Sprintf("%s:%d", peID, setNumber)),
					peID,
					fmtInt(setNumber),
					fmtInt(pe.targetReps),
					fmtFloat(pe.targetWeight),
					fmtInt(pe.targetRIR),
					fmtInt(rng.IntBetween(60, 181)),
				)
				pe.sets = append(pe.sets, planSetSpec{setNumber: setNumber})
			}
			spec.exercises = append(spec.exercises, pe)
		}
		plans = append(plans, spec)
	}

	planByUser := make(map[string]planSpec, len(plans))
	for _, p := range plans {
		planByUser[p.userID] = p
	}

	// Executed sessions. Rows are sorted by (user_id, started_at) before
	// writing; the child tables keep generation order.
	type workoutRow struct {
		id, userID, planID, startedAt, endedAt string
	}
	var workoutRows []workoutRow
	workoutExercises := newTable("workout_exercises",
		"workout_exercise_id", "workout_id", "exercise_id", "plan_exercise_id", "position", "notes")
	workoutSets := newTable("workout_sets",
		"workout_set_id", "workout_exercise_id", "set_number",
		"reps", "weight", "rir", "is_warmup", "completed_at")

	for _, userID := range userIDs {
		plan := planByUser[userID]
		for session := 1; session <= syn.Workouts.WorkoutsPerUser; session++ {
			daysAgo := rng.IntBetween(1, lookback+1)
			start := asOf.AddDate(0, 0, -daysAgo).
				Add(time.Duration(rng.IntBetween(5, 21))*time.Hour +
					time.Duration(rng.IntBetween(0, 60))*time.Minute)
			end := start.Add(time.Duration(rng.IntBetween(35, 95)) * time.Minute)

			workoutID := fitsynth.StableID("workout", fmt.Sprintf("%s:%d", userID, session))
			workoutRows = append(workoutRows, workoutRow{
				id:        workoutID,
				userID:    userID,
				planID:    plan.id,
				startedAt: fitsynth.FormatTimestamp(start),
				endedAt:   fitsynth.FormatTimestamp(end),
			})

			for _, pe := range plan.exercises {
				weID := fitsynth.StableID("workout_exercise", workoutID+":"+pe.id)
				workoutExercises.add(weID, workoutID, pe.exerciseID, pe.id,
					fmtInt(pe.position), "synthetic_workout_exercise")

				for _, ps := range pe.sets {
					reps := fitsynth.ClampInt(pe.targetReps+rng.IntBetween(-2, 3), 1, 20)
					weight := fitsynth.Round1(fitsynth.Clamp(pe.targetWeight+rng.Normal(0, 4), 2.0, 250.0))
					rir := fitsynth.ClampInt(pe.targetRIR+rng.IntBetween(-1, 2), 0, 5)
					isWarmup := ps.setNumber == 1 && rng.Float64() < 0.25
					completedAt := start.Add(time.Duration(3*pe.position+ps.setNumber) * time.Minute)
					workoutSets.add(
						fitsynth.StableID("workout_set", fmt.Sprintf("%s:%d", weID, ps.setNumber)),
						weID,
						fmtInt(ps.setNumber),
						fmtInt(reps),
						fmtFloat(weight),
						fmtInt(rir),
						fmtBool(isWarmup),
						fitsynth.FormatTimestamp(completedAt),
					)
				}
			}
		}
	}

	sort.SliceStable(workoutRows, func(i, j int) bool {
		if workoutRows[i].userID != workoutRows[j].userID {
			return workoutRows[i].userID < workoutRows[j].userID
		}
		return workoutRows[i].startedAt < workoutRows[j].startedAt
	})
	workouts := newTable("workouts", "workout_id", "user_id", "plan_id", "started_at", "ended_at", "notes")
	for _, w := range workoutRows {
		workouts.add(w.id, w.userID, w.planID, w.startedAt, w.endedAt, "synthetic_workout")
	}

	// Daily health logs.
	primaryGoal, err := primaryGoalNames(inputs["user_goals"])
	if err != nil {
		return nil, err
	}
	maintenanceByUser, err := intColumnByUser(inputs["calorie_targets"], "maintenance_calories")
	if err != nil {
		return nil, err
	}
	sleepTargetByUser, err := floatColumnByUser(inputs["sleep_targets"], "target_sleep_hours")
	if err != nil {
		return nil, err
	}

	calorieLogs := newTable("calorie_intake_logs",
		"calorie_log_id", "user_id", "log_date", "calories_consumed", "notes", "created_at")
	sleepLogs := newTable("sleep_duration_logs",
		"sleep_log_id", "user_id", "log_date", "sleep_duration_hours", "notes", "created_at")
	weightLogs := newTable("weight_logs",
		"weight_log_id", "user_id", "logged_at", "weight_kg", "body_fat_percentage", "notes")

	sampleSize := int(float64(lookback) * 0.7)
	if sampleSize < 10 {
		sampleSize = 10
	}

	for _, userID := range userIDs {
		maintenance := maintenanceByUser[userID]
		sleepTarget := sleepTargetByUser[userID]

		trendPerWeek := 0.0
		switch primaryGoal[userID] {
		case "fat_loss":
			trendPerWeek = -0.2
		case "muscle_gain":
			trendPerWeek = 0.12
		}

		initialWeight := fitsynth.Clamp(rng.Normal(76, 14), 45, 150)

		sampledDays, err := rng.SampleInts(lookback, sampleSize)
		if err != nil {
			return nil, err
		}
		sort.Ints(sampledDays)

		for _, d := range sampledDays {
			day := asOf.AddDate(0, 0, -d)
			dayStr := fitsynth.FormatDate(day)

			calories := int(fitsynth.Clamp(float64(maintenance)+rng.Normal(0, 220), 900, 5000))
			calorieLogs.add(
				fitsynth.StableID("calorie_log", userID+":"+dayStr),
				userID, dayStr, fmtInt(calories), "synthetic_calorie_log", asOfStamp,
			)

			sleepHours := fitsynth.Round2(fitsynth.Clamp(sleepTarget+rng.Normal(0, 0.8), 3.5, 12.0))
			sleepLogs.add(
				fitsynth.StableID("sleep_log", userID+":"+dayStr),
				userID, dayStr, fmtFloat(sleepHours), "synthetic_sleep_log", asOfStamp,
			)
		}

		for week := 0; week <= lookback; week += 7 {
			day := asOf.AddDate(0, 0, -week)
			trend := trendPerWeek * float64(week) / 7.0
			weight := fitsynth.Round2(fitsynth.Clamp(initialWeight-trend+rng.Normal(0, 0.35), 40, 180))
			bodyFat := fitsynth.Round2(fitsynth.Clamp(rng.Normal(24, 6), 6, 45))
			weightLogs.add(
				fitsynth.StableID("weight_log", userID+":"+fitsynth.FormatDate(day)),
				userID,
				fitsynth.FormatTimestamp(day),
				fmtFloat(weight),
				fmtFloat(bodyFat),
				"synthetic_weight_log",
			)
		}
	}

	tables := []*table{
		equipment, exercises, exerciseEquipment,
		workoutPlans, planExercises, planSets,
		workouts, workoutExercises, workoutSets,
		calorieLogs, sleepLogs, weightLogs,
	}

	runDir := fitsynth.RunDir(rawRoot, fitsynth.DatasetWorkouts, runID)
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
	if err := fitsynth.PublishLatest(rawRoot, fitsynth.DatasetWorkouts, latest); err != nil {
		return nil, err
	}

	return &Result{RunID: runID, RunDir: runDir, Counts: counts}, nil
}

// loadProfileTables resolves the latest profiles run and loads the
// tables the workout generator depends on.
func loadProfileTables(rawRoot string) (map[string]*fitsynth.CSVTable, error) {
	var latest Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetProfiles, &latest); err != nil {
		return nil, fmt.Errorf("workout generation needs a profiles run first: %w", err)
	}

	required := []string{"users", "user_profiles", "user_goals", "calorie_targets", "sleep_targets"}
	loaded := make(map[string]*fitsynth.CSVTable, len(required))
	for _, name := range required {
		t, err := fitsynth.ReadCSV(filepath.Join(latest.RunDir, name+".csv"))
		if err != nil {
			return nil, err
		}
		loaded[name] = t
	}
	return loaded, nil
}

// primaryGoalNames maps each user to their highest-priority goal name.
func primaryGoalNames(userGoals *fitsynth.CSVTable) (map[string]string, error) {
	goalNameByID := make(map[string]string, len(goalCatalog))
	for _, g := range goalCatalog {
		goalNameByID[fitsynth.StableID("goal", g.name)] = g.name
	}

	bestPriority := make(map[string]int)
	names := make(map[string]string)
	for i, row := range userGoals.Rows {
		userID := userGoals.Value(row, "user_id")
		priority, err := strconv.Atoi(userGoals.Value(row, "priority"))
		if err != nil {
			return nil, fmt.Errorf("parsing user_goals row %d priority: %w", i, err)
		}
		if cur, ok := bestPriority[userID]; !ok || priority < cur {
			bestPriority[userID] = priority
			names[userID] = goalNameByID[userGoals.Value(row, "goal_id")]
		}
	}
	return names, nil
}

func intColumnByUser(t *fitsynth.CSVTable, col string) (map[string]int, error) {
	out := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		v, err := strconv.Atoi(t.Value(row, col))
		if err != nil {
			return nil, fmt.Errorf("parsing row %d %s: %w", i, col, err)
		}
		out[t.Value(row, "user_id")] = v
	}
	return out, nil
}

func floatColumnByUser(t *fitsynth.CSVTable, col string) (map[string]float64, error) {
	out := make(map[string]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, err := strconv.ParseFloat(t.Value(row, col), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing row %d %s: %w", i, col, err)
		}
		out[t.Value(row, "user_id")] = v
	}
	return out, nil
}
