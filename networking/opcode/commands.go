package opcode

import "strconv"

// Command codes carried in the reserved byte of START frames.
const (
	SAVE           = 0x01
	DUMP           = 0x02
	SAVE_PROCESS   = 0x03
	DUMP_PROCESS   = 0x04
	SAVE_CRASH_LOG = 0x05
	DUMP_CRASH_LOG = 0x06
)

var commandNames = map[uint8]string{
	SAVE:           "save",
	DUMP:           "dump",
	SAVE_PROCESS:   "save-process",
	DUMP_PROCESS:   "dump-process",
	SAVE_CRASH_LOG: "save-crash-log",
	DUMP_CRASH_LOG: "dump-crash-log",
}

// CommandByName maps a command name to its code, 0 when unknown
func CommandByName(name string) uint8 {
	for code, n := range commandNames {
		if n == name {
			return code
		}
	}
	return 0
}

// CommandName returns printable name of a command code
func CommandName(command uint8) string {
	if n, ok := commandNames[command]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(command)) + ")"
}

// IsSave reports whether command pushes data to the host
func IsSave(command uint8) bool {
	return command == SAVE || command == SAVE_PROCESS || command == SAVE_CRASH_LOG
}

// IsDump reports whether command pulls data from the host
func IsDump(command uint8) bool {
	return command == DUMP || command == DUMP_PROCESS || command == DUMP_CRASH_LOG
}

// SaveCommandFor returns the save command whose reports a dump command returns
func SaveCommandFor(dump uint8) uint8 {
	if !IsDump(dump) {
		return 0
	}
	return dump - 1
}
