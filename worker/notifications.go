package worker

// NotificationKind is the closed set of notification sub-kinds.
type NotificationKind string

const (
	// Loading
	LoadingMod        NotificationKind = "LoadingMod"
	ModElementsCount  NotificationKind = "ModElementsCount"
	LoadingModIsEmpty NotificationKind = "LoadingModIsEmpty"

	// Conflict search
	ModConflictSearchInSwf NotificationKind = "ModConflictSearchInSwf"
	ModConflictNotFound    NotificationKind = "ModConflictNotFound"
	ModConflict            NotificationKind = "ModConflict"

	// Installing
	InstallingModSwf                          NotificationKind = "InstallingModSwf"
	InstallingModSwfSprite                    NotificationKind = "InstallingModSwfSprite"
	InstallingModSwfSound                     NotificationKind = "InstallingModSwfSound"
	InstallingModFile                         NotificationKind = "InstallingModFile"
	InstallingModFileCache                    NotificationKind = "InstallingModFileCache"
	InstallingModFinished                     NotificationKind = "InstallingModFinished"
	InstallingModNotFoundFileElement          NotificationKind = "InstallingModNotFoundFileElement"
	InstallingModNotFoundGameSwf              NotificationKind = "InstallingModNotFoundGameSwf"
	InstallingModSwfScriptError               NotificationKind = "InstallingModSwfScriptError"
	InstallingModSwfSoundSymbolclassNotExist  NotificationKind = "InstallingModSwfSoundSymbolclassNotExist"
	InstallingModSoundNotExist                NotificationKind = "InstallingModSoundNotExist"
	InstallingModSwfSpriteSymbolclassNotExist NotificationKind = "InstallingModSwfSpriteSymbolclassNotExist"
	InstallingModSpriteNotExist               NotificationKind = "InstallingModSpriteNotExist"

	// Uninstalling
	UninstallingModSwf                        NotificationKind = "UninstallingModSwf"
	UninstallingModSwfSprite                  NotificationKind = "UninstallingModSwfSprite"
	UninstallingModSwfSound                   NotificationKind = "UninstallingModSwfSound"
	UninstallingModFile                       NotificationKind = "UninstallingModFile"
	UninstallingModFinished                   NotificationKind = "UninstallingModFinished"
	UninstallingModSwfOriginalElementNotFound NotificationKind = "UninstallingModSwfOriginalElementNotFound"
	UninstallingModSwfElementNotFound         NotificationKind = "UninstallingModSwfElementNotFound"

	// Decompiling
	DecompilingMod         NotificationKind = "DecompilingMod"
	DecompilingModFinished NotificationKind = "DecompilingModFinished"

	// Compiler validation, relayed as-is
	CompileModSourcesSpriteHasNoSymbolclass NotificationKind = "CompileModSourcesSpriteHasNoSymbolclass"
	CompileModSourcesSpriteEmpty            NotificationKind = "CompileModSourcesSpriteEmpty"
	CompileModSourcesSpriteNotFoundInFolder NotificationKind = "CompileModSourcesSpriteNotFoundInFolder"
	CompileModSourcesUnsupportedCategory    NotificationKind = "CompileModSourcesUnsupportedCategory"
	CompileModSourcesUnknownFile            NotificationKind = "CompileModSourcesUnknownFile"
	CompileModSourcesSaveError              NotificationKind = "CompileModSourcesSaveError"

	// RequestFailed reports a request the worker could not carry out.
	RequestFailed NotificationKind = "RequestFailed"
)

// Recoverable reports whether k signals a localized failure that is buffered
// and shown once the running operation ends.
func (k NotificationKind) Recoverable() bool {
	switch k {
	case LoadingModIsEmpty,
		InstallingModNotFoundFileElement, InstallingModNotFoundGameSwf,
		InstallingModSwfScriptError, InstallingModSwfSoundSymbolclassNotExist,
		InstallingModSoundNotExist, InstallingModSwfSpriteSymbolclassNotExist,
		InstallingModSpriteNotExist,
		UninstallingModSwfOriginalElementNotFound, UninstallingModSwfElementNotFound,
		CompileModSourcesSpriteHasNoSymbolclass, CompileModSourcesSpriteEmpty,
		CompileModSourcesSpriteNotFoundInFolder, CompileModSourcesUnsupportedCategory,
		CompileModSourcesUnknownFile, CompileModSourcesSaveError,
		RequestFailed:
		return true
	}
	return false
}
