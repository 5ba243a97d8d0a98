// Package progression contains the gamification core of LearnHub:
// the level curve, daily streak continuity and achievement criteria.
//
// Everything in this package is pure. Functions take the current state and
// return the next one; persistence, retries and per-user serialization live
// in the application and infrastructure layers.
//
// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════
//
// The experience needed to leave level L is round(100 * L^1.5):
//
//	level 1 -> 100
//	level 2 -> 283
//	level 3 -> 520
//	level 4 -> 800
//
// A UserLevel stores only the experience accumulated inside the current
// level, so 0 <= Experience < NextLevelExp always holds. Overflow from one
// award is rolled into as many level-ups as it covers.
//
// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════
//
// A streak counts consecutive UTC calendar days with at least one qualifying
// activity. The first activity of a day continues the streak if the previous
// active day was yesterday, otherwise it starts over at 1.
package progression
