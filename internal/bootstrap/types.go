package bootstrap

// Source identifies where a resolved binary came from.
type Source string

const (
	SourceUnknown      Source = ""
	SourceOverride     Source = "override"
	SourceDevelopment  Source = "dev-build"
	SourceBinDir       Source = "bin-dir"
	SourceReleaseCache Source = "release-cache"
	SourcePath         Source = "path"
)

// Mode distinguishes a development checkout of the editor integration from a
// normal install.
type Mode int

const (
	ModeNormal Mode = iota
	ModeDevelopment
)

// Candidate is one probe location together with the outcome of its version
// query.
type Candidate struct {
	Source  Source `json:"source"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	Valid   bool   `json:"valid"`
	Missing bool   `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`
}

// InstallMethod records how the release binary got onto disk.
type InstallMethod string

const (
	MethodSourceBuild InstallMethod = "source-build"
	MethodDownload    InstallMethod = "download"
)

// InstallRecord describes one successful install in the manifest.
type InstallRecord struct {
	Method      InstallMethod `json:"method"`
	Version     string        `json:"version"`
	Path        string        `json:"path"`
	Checksum    string        `json:"checksum,omitempty"`
	Asset       string        `json:"asset,omitempty"`
	InstalledAt string        `json:"installed_at"`
}

// Manifest wraps persisted install records. It is informational only and
// never consulted during resolution.
type Manifest struct {
	Current *InstallRecord  `json:"current,omitempty"`
	History []InstallRecord `json:"history,omitempty"`
}

// UpdateNotice is handed to the Notifier when the installed server version
// differs from the client's.
type UpdateNotice struct {
	Path     string `json:"path"`
	Current  string `json:"current"`
	Expected string `json:"expected"`
}

// Notifier surfaces a non-blocking update offer. Implementations must return
// promptly; the resolver never waits on the user's answer.
type Notifier interface {
	UpdateAvailable(UpdateNotice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(UpdateNotice)

func (f NotifierFunc) UpdateAvailable(n UpdateNotice) { f(n) }

type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) UpdateAvailable(UpdateNotice) {}
