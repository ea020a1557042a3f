package db

import (
	"time"

	"gorm.io/gorm"
)

// AppliedMod is a mod the engine has installed into the game.
type AppliedMod struct {
	gorm.Model
	Hash        string `gorm:"uniqueIndex"` // SHA-1 of the mod file
	Name        string
	Author      string
	Version     string
	GameVersion string
	SourcePath  string // Where the mod file was when it was installed
	CachePath   string // Copy kept so the mod can be uninstalled after its source is gone
	InstalledAt time.Time
}

// AppliedElement is one game element overridden by an applied mod.
type AppliedElement struct {
	gorm.Model
	ModHash string `gorm:"index"`
	Name    string `gorm:"index"`
}

// InstallHistory records every change the engine made to the game.
type InstallHistory struct {
	gorm.Model
	Action string // install, uninstall, base
	Hash   string
	Label  string // Mod name, or the base mod label
}
