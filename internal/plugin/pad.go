package plugin

import "time"

// Log machine numbers as reported by the automation engine.
const (
	LogMachineMain  = 0
	LogMachineAux1  = 1
	LogMachineAux2  = 2
	LogMachineVLog1 = 100 // VLog101
	LogMachineVLogN = 119 // VLog120
)

type ServiceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProgramCode string `json:"program_code,omitempty"`
}

type LogInfo struct {
	Name    string `json:"name,omitempty"`
	Machine int    `json:"machine"`
	OnAir   bool   `json:"onair"`
}

// Pad is the metadata of one playing (or next to play) item.
// Length is in milliseconds.
type Pad struct {
	CartNumber  uint32    `json:"cart_number"`
	CutNumber   int       `json:"cut_number,omitempty"`
	Length      int       `json:"length"`
	Year        int       `json:"year,omitempty"`
	Group       string    `json:"group,omitempty"`
	Title       string    `json:"title,omitempty"`
	Artist      string    `json:"artist,omitempty"`
	Album       string    `json:"album,omitempty"`
	Label       string    `json:"label,omitempty"`
	Client      string    `json:"client,omitempty"`
	Agency      string    `json:"agency,omitempty"`
	Composer    string    `json:"composer,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Conductor   string    `json:"conductor,omitempty"`
	UserDefined string    `json:"user_defined,omitempty"`
	SongID      string    `json:"song_id,omitempty"`
	Outcue      string    `json:"outcue,omitempty"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time,omitempty"`
}

// PadEvent is one now&next transition. Now or Next may be nil when the log
// has nothing playing / nothing queued.
type PadEvent struct {
	Service ServiceInfo `json:"service"`
	Log     LogInfo     `json:"log"`
	Now     *Pad        `json:"now,omitempty"`
	Next    *Pad        `json:"next,omitempty"`
}
