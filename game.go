package main

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// Storage keys for the gamification counters and the roast-mode flag
const (
	XPKey     = "soteria_xp"
	StreakKey = "soteria_streak"
	RoastKey  = "soteria_roast"
)

// XP awards for a completed quick scan
const (
	XPPerScan    = 10
	XPCleanBonus = 50
)

// Level is the rank derived from accumulated XP
type Level string

const (
	LevelNovice       Level = "Novice"
	LevelApprentice   Level = "Apprentice"
	LevelPractitioner Level = "Practitioner"
	LevelArchitect    Level = "Architect"
	LevelGrandmaster  Level = "Grandmaster"
)

// LevelForXP maps an XP total to its rank
func LevelForXP(xp int) Level {
	switch {
	case xp < 100:
		return LevelNovice
	case xp < 500:
		return LevelApprentice
	case xp < 2000:
		return LevelPractitioner
	case xp < 5000:
		return LevelArchitect
	default:
		return LevelGrandmaster
	}
}

// GameState is the process-wide gamification and roast-mode state. It is loaded
// once from storage and mutated only through its methods, each of which persists.
type GameState struct {
	storage Storage
	log     *logrus.Entry

	mu     sync.Mutex
	xp     int
	streak int
	roast  bool
}

// LoadGameState reads counters from storage; missing or malformed values use defaults
func LoadGameState(storage Storage, log *logrus.Logger) *GameState {
	g := &GameState{
		storage: storage,
		log:     componentLogger(log, "game"),
		streak:  1,
	}

	if v, ok := g.readInt(XPKey); ok && v >= 0 {
		g.xp = v
	}
	if v, ok := g.readInt(StreakKey); ok && v > 0 {
		g.streak = v
	}
	if raw, ok, err := storage.Get(RoastKey); err == nil && ok {
		g.roast = raw == "true"
	}
	return g
}

func (g *GameState) readInt(key string) (int, bool) {
	raw, ok, err := g.storage.Get(key)
	if err != nil {
		g.log.WithError(err).WithField("key", key).Warn("failed to read game state")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		g.log.WithField("key", key).WithField("value", raw).Warn("ignoring malformed game state value")
		return 0, false
	}
	return n, true
}

// AddXP increments the XP counter and persists it, returning the new total
func (g *GameState) AddXP(amount int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.xp += amount
	if err := g.storage.Set(XPKey, strconv.Itoa(g.xp)); err != nil {
		g.log.WithError(err).Warn("failed to persist xp")
	}
	return g.xp
}

// AwardScan applies the reward for a completed scan: 10 XP, plus 50 when clean
func (g *GameState) AwardScan(verdict Status) int {
	amount := XPPerScan
	if verdict == StatusClean {
		amount += XPCleanBonus
	}
	return g.AddXP(amount)
}

// ToggleRoastMode flips roast mode and persists it, returning the new value
func (g *GameState) ToggleRoastMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setRoast(!g.roast)
	return g.roast
}

// SetRoastMode sets roast mode explicitly
func (g *GameState) SetRoastMode(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setRoast(on)
}

func (g *GameState) setRoast(on bool) {
	g.roast = on
	if err := g.storage.Set(RoastKey, strconv.FormatBool(on)); err != nil {
		g.log.WithError(err).Warn("failed to persist roast mode")
	}
}

// XP returns the accumulated XP
func (g *GameState) XP() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.xp
}

// Streak returns the current streak counter
func (g *GameState) Streak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streak
}

// RoastMode reports whether roast mode is on
func (g *GameState) RoastMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roast
}

// Level returns the rank for the current XP
func (g *GameState) Level() Level {
	return LevelForXP(g.XP())
}
