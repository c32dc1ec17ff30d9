// Package ecodes holds the frozen, build-time name table spec.md §4.1
// refers to: the evdev event types and the subset of type/code/value
// symbolic names the key-language parser resolves. It also defines
// the small numeric type/value enumerations used throughout the core.
//
// The table here is not exhaustive of the Linux evdev name space —
// only the names this implementation's tests and the scenarios in
// spec.md §8 exercise are carried. It is grounded on
// original_source/src/ecodes.rs and src/scancodes.rs, which generate
// their table from the kernel's input-event-codes.h; this is the Go
// equivalent expressed as literal maps instead of a generated source
// file.
package ecodes

// EV_* — event types, fixed enumeration per spec.md §3.
const (
	EV_SYN uint16 = 0x00
	EV_KEY uint16 = 0x01
	EV_REL uint16 = 0x02
	EV_ABS uint16 = 0x03
	EV_MSC uint16 = 0x04
	EV_SW  uint16 = 0x05
	EV_LED uint16 = 0x11
	EV_SND uint16 = 0x12
	EV_REP uint16 = 0x14
	EV_FF  uint16 = 0x15
	EV_PWR uint16 = 0x16
	EV_MAX uint16 = 0x1f
)

// SYN_REPORT terminates one evdev report; spec.md §3/§5.
const SYN_REPORT uint16 = 0

// Key values for EV_KEY.
const (
	KeyUp     int32 = 0
	KeyDown   int32 = 1
	KeyRepeat int32 = 2
)

// Well-known symbolic names, by event type, resolved at compile time.
// An unknown name is a compile-time "unknown name" error (spec.md §4.1).
var typeNames = map[string]uint16{
	"EV_SYN": EV_SYN,
	"EV_KEY": EV_KEY,
	"EV_REL": EV_REL,
	"EV_ABS": EV_ABS,
	"EV_MSC": EV_MSC,
	"EV_SW":  EV_SW,
	"EV_LED": EV_LED,
	"EV_SND": EV_SND,
	"EV_REP": EV_REP,
	"EV_FF":  EV_FF,
	"EV_PWR": EV_PWR,
	"syn":    EV_SYN,
	"key":    EV_KEY,
	"rel":    EV_REL,
	"abs":    EV_ABS,
	"msc":    EV_MSC,
	"sw":     EV_SW,
	"led":    EV_LED,
	"snd":    EV_SND,
	"rep":    EV_REP,
}

// codeNames maps a type to its code-name table. Names are lowercased
// before lookup by the key-language parser (case-insensitive), so
// this table's keys are stored lowercase, with their kernel prefix
// ("key_a", "abs_x"); ResolveCodeName also accepts them without it.
var codeNames = map[uint16]map[string]uint16{
	EV_KEY: keyCodeNames,
	EV_REL: relCodeNames,
	EV_ABS: absCodeNames,
	EV_SYN: synCodeNames,
	EV_MSC: mscCodeNames,
}

var synCodeNames = map[string]uint16{
	"syn_report": 0,
	"syn_config": 1,
	"syn_mt_report": 2,
	"syn_dropped": 3,
}

var mscCodeNames = map[string]uint16{
	"msc_serial":    0x00,
	"msc_pulseled":  0x01,
	"msc_gesture":   0x02,
	"msc_raw":       0x03,
	"msc_scan":      0x04,
	"msc_timestamp": 0x05,
}

var relCodeNames = map[string]uint16{
	"rel_x":      0x00,
	"rel_y":      0x01,
	"rel_z":      0x02,
	"rel_hwheel": 0x06,
	"rel_wheel":  0x08,
}

var absCodeNames = map[string]uint16{
	"abs_x":         0x00,
	"abs_y":         0x01,
	"abs_z":         0x02,
	"abs_rx":        0x03,
	"abs_ry":        0x04,
	"abs_rz":        0x05,
	"abs_throttle":  0x06,
	"abs_rudder":    0x07,
	"abs_wheel":     0x08,
	"abs_gas":       0x09,
	"abs_brake":     0x0a,
	"abs_hat0x":     0x10,
	"abs_hat0y":     0x11,
	"abs_pressure":  0x18,
	"abs_mt_slot":   0x2f,
}

var keyCodeNames = map[string]uint16{
	"key_esc": 1, "key_1": 2, "key_2": 3, "key_3": 4, "key_4": 5,
	"key_5": 6, "key_6": 7, "key_7": 8, "key_8": 9, "key_9": 10, "key_0": 11,
	"key_minus": 12, "key_equal": 13, "key_backspace": 14, "key_tab": 15,
	"key_q": 16, "key_w": 17, "key_e": 18, "key_r": 19, "key_t": 20,
	"key_y": 21, "key_u": 22, "key_i": 23, "key_o": 24, "key_p": 25,
	"key_leftbrace": 26, "key_rightbrace": 27, "key_enter": 28,
	"key_leftctrl": 29, "key_a": 30, "key_s": 31, "key_d": 32, "key_f": 33,
	"key_g": 34, "key_h": 35, "key_j": 36, "key_k": 37, "key_l": 38,
	"key_semicolon": 39, "key_apostrophe": 40, "key_grave": 41,
	"key_leftshift": 42, "key_backslash": 43, "key_z": 44, "key_x": 45,
	"key_c": 46, "key_v": 47, "key_b": 48, "key_n": 49, "key_m": 50,
	"key_comma": 51, "key_dot": 52, "key_slash": 53, "key_rightshift": 54,
	"key_kpasterisk": 55, "key_leftalt": 56, "key_space": 57,
	"key_capslock": 58,
	"key_f1": 59, "key_f2": 60, "key_f3": 61, "key_f4": 62, "key_f5": 63,
	"key_f6": 64, "key_f7": 65, "key_f8": 66, "key_f9": 67, "key_f10": 68,
	"key_numlock": 69, "key_scrolllock": 70,
	"key_rightctrl": 97, "key_rightalt": 100,
	"key_home": 102, "key_up": 103, "key_pageup": 104, "key_left": 105,
	"key_right": 106, "key_end": 107, "key_down": 108, "key_pagedown": 109,
	"key_insert": 110, "key_delete": 111,
	"key_leftmeta": 125, "key_rightmeta": 126,
	"btn_left": 0x110, "btn_right": 0x111, "btn_middle": 0x112,
	"btn_side": 0x113, "btn_extra": 0x114,
	"btn_south": 0x130, "btn_east": 0x131, "btn_north": 0x133, "btn_west": 0x134,
	"btn_tl": 0x136, "btn_tr": 0x137, "btn_select": 0x13a, "btn_start": 0x13b,
}

// ResolveTypeName looks up a symbolic type name.
func ResolveTypeName(name string) (uint16, bool) {
	t, ok := typeNames[name]
	return t, ok
}

// ResolveCodeName looks up a symbolic code name within an event type.
func ResolveCodeName(evType uint16, name string) (uint16, bool) {
	table, ok := codeNames[evType]
	if !ok {
		return 0, false
	}
	if c, ok := table[name]; ok {
		return c, true
	}
	// A code name may be written without its kernel prefix ("key:a" for
	// key_a, "abs:x" for abs_x).
	prefix := map[uint16]string{EV_KEY: "key_", EV_REL: "rel_", EV_ABS: "abs_", EV_SYN: "syn_", EV_MSC: "msc_"}[evType]
	c, ok := table[prefix+name]
	return c, ok
}

// TypeName returns the canonical name for an event type, or "" if unknown.
func TypeName(evType uint16) string {
	for name, t := range typeNames {
		if t == evType && len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z' {
			return name
		}
	}
	return ""
}
