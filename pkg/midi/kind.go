package midi

// Status and data byte masks
const (
	StatusMask  = 0x80
	DataMask    = 0x7F
	CommandMask = 0xF0
	ChannelMask = 0x0F
)

// System status bytes with special handling in the stream
const (
	SysExStart byte = 0xF0
	SysExEnd   byte = 0xF7
)

// Class is the coarse category of a single byte in a MIDI 1.0 stream
type Class uint8

const (
	// ClassData is 0x00-0x7F
	ClassData Class = iota
	// ClassChannelVoice is 0x80-0xEF
	ClassChannelVoice
	// ClassSysExStart is 0xF0
	ClassSysExStart
	// ClassSystemCommon is 0xF1-0xF7, including the 0xF7 terminator
	ClassSystemCommon
	// ClassRealtime is 0xF8-0xFF
	ClassRealtime
)

func (c Class) String() string {
	switch c {
	case ClassData:
		return "Data"
	case ClassChannelVoice:
		return "ChannelVoice"
	case ClassSysExStart:
		return "SysExStart"
	case ClassSystemCommon:
		return "SystemCommon"
	case ClassRealtime:
		return "Realtime"
	default:
		return "Unknown"
	}
}

// Classify returns the class of b. It has no side effects.
func Classify(b byte) Class {
	switch {
	case !IsStatus(b):
		return ClassData
	case b < 0xF0:
		return ClassChannelVoice
	case b == SysExStart:
		return ClassSysExStart
	case b < 0xF8:
		return ClassSystemCommon
	default:
		return ClassRealtime
	}
}

// IsStatus returns true if b is a status byte
func IsStatus(b byte) bool {
	return b&StatusMask != 0
}

// IsReserved returns true for the undefined status values 0xF4, 0xF5, 0xF9 and 0xFD
func IsReserved(b byte) bool {
	return b == 0xF4 || b == 0xF5 || b == 0xF9 || b == 0xFD
}

// Family groups message kinds the way the stream treats them
type Family uint8

const (
	// FamilyNone is the family of KindNone
	FamilyNone Family = iota
	FamilyChannelVoice
	FamilySystemCommon
	FamilyRealtime
	FamilySysEx
)

func (f Family) String() string {
	switch f {
	case FamilyChannelVoice:
		return "ChannelVoice"
	case FamilySystemCommon:
		return "SystemCommon"
	case FamilyRealtime:
		return "Realtime"
	case FamilySysEx:
		return "SysEx"
	default:
		return "None"
	}
}

// Kind identifies a message type
type Kind uint8

const (
	KindNone Kind = iota

	// Channel Voice
	KindNoteOff
	KindNoteOn
	KindPolyPressure
	KindControlChange
	KindProgramChange
	KindChannelPressure
	KindPitchBend

	// System Common
	KindTimeCodeQuarterFrame
	KindSongPositionPointer
	KindSongSelect
	KindTuneRequest

	// System Realtime
	KindTimingClock
	KindStart
	KindContinue
	KindStop
	KindActiveSensing
	KindSystemReset

	KindSystemExclusive

	numKinds
)

type kindInfo struct {
	status     byte // status byte, channel 0 for channel voice
	family     Family
	dataLength int // -1 means terminated by SysExEnd
	name       string
}

var kindInfos = [numKinds]kindInfo{
	KindNone: {name: "None"},

	KindNoteOff:         {status: 0x80, family: FamilyChannelVoice, dataLength: 2, name: "NoteOff"},
	KindNoteOn:          {status: 0x90, family: FamilyChannelVoice, dataLength: 2, name: "NoteOn"},
	KindPolyPressure:    {status: 0xA0, family: FamilyChannelVoice, dataLength: 2, name: "PolyPressure"},
	KindControlChange:   {status: 0xB0, family: FamilyChannelVoice, dataLength: 2, name: "ControlChange"},
	KindProgramChange:   {status: 0xC0, family: FamilyChannelVoice, dataLength: 1, name: "ProgramChange"},
	KindChannelPressure: {status: 0xD0, family: FamilyChannelVoice, dataLength: 1, name: "ChannelPressure"},
	KindPitchBend:       {status: 0xE0, family: FamilyChannelVoice, dataLength: 2, name: "PitchBend"},

	KindTimeCodeQuarterFrame: {status: 0xF1, family: FamilySystemCommon, dataLength: 1, name: "TimeCodeQuarterFrame"},
	KindSongPositionPointer:  {status: 0xF2, family: FamilySystemCommon, dataLength: 2, name: "SongPositionPointer"},
	KindSongSelect:           {status: 0xF3, family: FamilySystemCommon, dataLength: 1, name: "SongSelect"},
	KindTuneRequest:          {status: 0xF6, family: FamilySystemCommon, dataLength: 0, name: "TuneRequest"},

	KindTimingClock:   {status: 0xF8, family: FamilyRealtime, name: "TimingClock"},
	KindStart:         {status: 0xFA, family: FamilyRealtime, name: "Start"},
	KindContinue:      {status: 0xFB, family: FamilyRealtime, name: "Continue"},
	KindStop:          {status: 0xFC, family: FamilyRealtime, name: "Stop"},
	KindActiveSensing: {status: 0xFE, family: FamilyRealtime, name: "ActiveSensing"},
	KindSystemReset:   {status: 0xFF, family: FamilyRealtime, name: "SystemReset"},

	KindSystemExclusive: {status: SysExStart, family: FamilySysEx, dataLength: -1, name: "SystemExclusive"},
}

// channelKinds maps the high nibble of a channel voice status (minus 8) to its kind
var channelKinds = [8]Kind{
	KindNoteOff,
	KindNoteOn,
	KindPolyPressure,
	KindControlChange,
	KindProgramChange,
	KindChannelPressure,
	KindPitchBend,
}

// systemKinds maps the low nibble of a 0xFn status to its kind.
// Undefined values (0xF4, 0xF5, 0xF9, 0xFD) and the SysEx terminator map to KindNone.
var systemKinds = [16]Kind{
	0x0: KindSystemExclusive,
	0x1: KindTimeCodeQuarterFrame,
	0x2: KindSongPositionPointer,
	0x3: KindSongSelect,
	0x6: KindTuneRequest,
	0x8: KindTimingClock,
	0xA: KindStart,
	0xB: KindContinue,
	0xC: KindStop,
	0xE: KindActiveSensing,
	0xF: KindSystemReset,
}

// KindOf returns the message kind introduced by a status byte, or KindNone for
// data bytes, undefined status values and SysExEnd.
func KindOf(status byte) Kind {
	if status < 0x80 {
		return KindNone
	}
	if status < 0xF0 {
		return channelKinds[(status>>4)-8]
	}
	return systemKinds[status&ChannelMask]
}

// DataLength returns the number of data bytes following status, -1 for SysEx
// and 0 for anything without a defined message.
func DataLength(status byte) int {
	return KindOf(status).DataLength()
}

// DataLength returns the number of data bytes carried by a message of this kind
func (k Kind) DataLength() int {
	if k >= numKinds {
		return 0
	}
	return kindInfos[k].dataLength
}

// Family returns the family the kind belongs to
func (k Kind) Family() Family {
	if k >= numKinds {
		return FamilyNone
	}
	return kindInfos[k].family
}

// Status returns the status byte for the kind, with channel applied for
// channel voice kinds.
func (k Kind) Status(channel uint8) byte {
	if k >= numKinds {
		return 0
	}
	info := kindInfos[k]
	if info.family == FamilyChannelVoice {
		return info.status | channel&ChannelMask
	}
	return info.status
}

func (k Kind) String() string {
	if k >= numKinds {
		return "Unknown"
	}
	return kindInfos[k].name
}

// ParseKind returns the kind with the given name
func ParseKind(name string) (Kind, bool) {
	for k := KindNone + 1; k < numKinds; k++ {
		if kindInfos[k].name == name {
			return k, true
		}
	}
	return KindNone, false
}
