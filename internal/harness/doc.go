// Package harness runs progression scenarios against a real engine.
//
// A scenario seeds a catalog, records completions step by step on a fake
// clock and checks what the engine derived: XP per completion, level-ups,
// unlocks, achievements and streaks. Each run uses a fresh in-memory store,
// sequential record ids and no remote, so the same scenario always produces
// the same result and can be compared against a golden file.
//
// # Scenario Format
//
//	name: unlock_gating
//	description: "Intermediate entries open at level 5"
//	start: 2025-03-10T09:00:00Z
//	time_zone: Asia/Kolkata
//	rules: custom.cue            # optional, relative to the scenario file
//	catalog:
//	  - id: maths-addition
//	    subject: maths
//	    class_level: 6
//	    difficulty: BEGINNER
//	    base_xp_reward: 100
//	    time_estimate_sec: 300
//	steps:
//	  - student: asha
//	    entry: maths-addition
//	    score: 80
//	    time_spent_sec: 120
//	    expect:
//	      xp_earned: 181
//	      newly_unlocked: []
//	  - advance: 24h
//	    student: asha
//	    entry: maths-addition
//	    score: 90
//	assertions:
//	  - type: level
//	    student: asha
//	    value: 3
//	  - type: locked
//	    student: asha
//	    entry: maths-fractions
//
// # Assertion Types
//
//   - level, total_xp, current_streak, longest_streak, games_completed: compare value
//   - mastery: compare value for subject
//   - unlocked, locked: entry state
//   - achievement: achievement earned
//   - outbox: number of queued outbox items across all students
//
// Usage:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/streak.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
