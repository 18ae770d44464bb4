package protocol

// Magic payload tokens exchanged during a flash session. These are
// ASCII and never NUL-terminated except where noted.
var (
	TokenYACK = []byte("YACK\n")
	TokenSTRT = []byte("STRT")
	TokenRETR = []byte("RETR")
	TokenWTRM = []byte("WTRM")
	TokenFILE = []byte("FILE\n")
	TokenTERM = []byte("TERM\n")
)

// NPKMagic is the 4-byte signature every firmware package must start
// with. The pre-flight check in the session engine rejects any
// firmware whose first four bytes differ from this.
var NPKMagic = [4]byte{0x1E, 0xF1, 0xD0, 0xBA}

// AutorunScriptName is the fixed remote name under which an initial
// configuration script is always uploaded, regardless of its local
// file name.
const AutorunScriptName = "autorun.scr"

// MaxChunkBytes is the size of every FileBody chunk except the last.
const MaxChunkBytes = 1024

// MaxErrors bounds how many out-of-sync replies the session engine
// tolerates during a single wait before promoting to an abort.
const MaxErrors = 25

// DefaultRecvTimeoutSeconds is the default per-recv OS timeout.
const DefaultRecvTimeoutSeconds = 60

// DefaultChunkSleepMillis is the empirical inter-chunk throttle. Too
// low and the device falls behind and desyncs; too high and flashing
// becomes unacceptably slow.
const DefaultChunkSleepMillis = 5

// Phase identifies a step of the session state machine. It is a
// string-backed enum so it reads directly off the wire (status feed
// JSON, log lines) without a side lookup table.
type Phase string

const (
	PhaseOffer      Phase = "Offer"
	PhaseFormat     Phase = "Format"
	PhasePreFile    Phase = "PreFile"
	PhaseFileHeader Phase = "FileHeader"
	PhaseFileBody   Phase = "FileBody"
	PhasePostFile   Phase = "PostFile"
	PhaseFinalize   Phase = "Finalize"
	PhaseReboot     Phase = "Reboot"
	PhaseDone       Phase = "Done"
	PhaseAborted    Phase = "Aborted"
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p == "" {
		return "Unknown"
	}
	return string(p)
}

// IsTerminal reports whether p ends a session, successfully or not.
// Consumers like the watch dashboard use this to decide when to
// retire a device row.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseAborted
}
