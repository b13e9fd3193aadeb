package ltc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/ltcgen/internal/errors"
)

// UserBitsMode tells which representation produced the 32-bit payload.
type UserBitsMode int

const (
	UserBitsEmpty UserBitsMode = iota
	UserBitsRaw
	UserBitsSemantic
)

func (m UserBitsMode) String() string {
	switch m {
	case UserBitsRaw:
		return "raw"
	case UserBitsSemantic:
		return "semantic"
	default:
		return "empty"
	}
}

// Binary group flag bits carried in the frame. Bits 3-7 of the mask are
// stored and reported but have no slot in the 80-bit word.
const (
	BGF0 = 1 << iota
	BGF1
	BGF2
)

// Fixed group slots of the semantic fields.
const (
	slotMonth = iota
	slotDay
	slotTimezone
	slotReel
)

// MaxCameraLength is the longest camera id; one character per 8-bit group.
const MaxCameraLength = 4

// UserBitsInput is the unvalidated form of the user bits. Nil or empty fields
// are "not supplied". Groups and the semantic fields (Date, Timezone, Reel,
// Camera) are mutually exclusive.
type UserBitsInput struct {
	Groups       *[4]int `json:"groups,omitempty"`
	Date         string  `json:"date,omitempty"`     // YYYY-MM-DD
	Timezone     string  `json:"timezone,omitempty"` // UTC+H, UTC-HH
	Reel         *int    `json:"reel,omitempty"`
	Camera       string  `json:"camera,omitempty"`
	BinaryGroups *int    `json:"binary_groups,omitempty"`
	Field1       *int    `json:"field1,omitempty"`
}

func (in UserBitsInput) hasSemantic() bool {
	return in.Date != "" || in.Timezone != "" || in.Reel != nil || in.Camera != ""
}

// IsZero reports whether nothing was supplied.
func (in UserBitsInput) IsZero() bool {
	return in.Groups == nil && !in.hasSemantic() && in.BinaryGroups == nil && in.Field1 == nil
}

func (in UserBitsInput) clone() UserBitsInput {
	out := in
	if in.Groups != nil {
		g := *in.Groups
		out.Groups = &g
	}
	if in.Reel != nil {
		r := *in.Reel
		out.Reel = &r
	}
	if in.BinaryGroups != nil {
		b := *in.BinaryGroups
		out.BinaryGroups = &b
	}
	if in.Field1 != nil {
		f := *in.Field1
		out.Field1 = &f
	}
	return out
}

// UserBits is a validated, immutable user-bits payload: four 8-bit groups,
// the binary group flags and an optional field1 nibble override.
type UserBits struct {
	mode         UserBitsMode
	groups       [4]uint8
	binaryGroups uint8
	field1       uint8
	hasField1    bool
	input        UserBitsInput
}

// NewUserBits validates in and packs it into the 32-bit payload.
func NewUserBits(in UserBitsInput) (UserBits, error) {
	if in.Groups != nil && in.hasSemantic() {
		return UserBits{}, errors.NewConfigError("user bits: raw groups and date/timezone/reel/camera are mutually exclusive")
	}

	ub := UserBits{input: in.clone()}

	if in.BinaryGroups != nil {
		v := *in.BinaryGroups
		if v < 0 || v > 255 {
			return UserBits{}, errors.Validationf("binary group flags must be 0-255, got %d", v)
		}
		ub.binaryGroups = uint8(v)
	}

	if in.Field1 != nil {
		v := *in.Field1
		if v < 0 || v > 15 {
			return UserBits{}, errors.Validationf("field1 must be 0-15, got %d", v)
		}
		ub.field1 = uint8(v)
		ub.hasField1 = true
	}

	switch {
	case in.Groups != nil:
		ub.mode = UserBitsRaw
		for i, v := range in.Groups {
			if v < 0 || v > 255 {
				return UserBits{}, errors.Validationf("user group %d must be 0-255, got %d", i+1, v)
			}
			ub.groups[i] = uint8(v)
		}
	case in.hasSemantic():
		ub.mode = UserBitsSemantic
		groups, err := packSemantic(in)
		if err != nil {
			return UserBits{}, err
		}
		ub.groups = groups
	}

	return ub, nil
}

// packSemantic places each field in its own group: month and day in groups
// 0-1, timezone in 2, reel in 3. Camera characters go, in order, into the
// groups no other supplied field occupies; characters beyond those are dropped.
func packSemantic(in UserBitsInput) ([4]uint8, error) {
	var groups [4]uint8
	var used [4]bool

	if in.Date != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(in.Date))
		if err != nil {
			return groups, errors.WrapParseError(err, fmt.Sprintf("date %q must be YYYY-MM-DD", in.Date))
		}
		groups[slotMonth] = bcd(int(d.Month()))
		groups[slotDay] = bcd(d.Day())
		used[slotMonth], used[slotDay] = true, true
	}

	if in.Timezone != "" {
		sign, hours, err := parseTimezone(in.Timezone)
		if err != nil {
			return groups, err
		}
		groups[slotTimezone] = sign<<7 | uint8(hours)
		used[slotTimezone] = true
	}

	if in.Reel != nil {
		if *in.Reel < 0 || *in.Reel > 99 {
			return groups, errors.Validationf("reel must be 0-99, got %d", *in.Reel)
		}
		groups[slotReel] = bcd(*in.Reel)
		used[slotReel] = true
	}

	if in.Camera != "" {
		if len(in.Camera) > MaxCameraLength {
			return groups, errors.Validationf("camera id must be at most %d characters, got %q", MaxCameraLength, in.Camera)
		}
		slot := 0
		for i := 0; i < len(in.Camera); i++ {
			c := in.Camera[i]
			if c < 0x20 || c > 0x7e {
				return groups, errors.NewParseError(fmt.Sprintf("camera id %q must be printable ASCII", in.Camera))
			}
			for slot < len(groups) && used[slot] {
				slot++
			}
			if slot < len(groups) {
				groups[slot] = c
				used[slot] = true
			}
		}
	}

	return groups, nil
}

// parseTimezone accepts UTC, UTC+H and UTC-HH. The sign bit is 1 for east
// of UTC.
func parseTimezone(s string) (uint8, int, error) {
	tz := strings.ToUpper(strings.TrimSpace(s))
	if tz == "UTC" {
		return 1, 0, nil
	}
	if !strings.HasPrefix(tz, "UTC+") && !strings.HasPrefix(tz, "UTC-") {
		return 0, 0, errors.NewParseError(fmt.Sprintf("timezone %q must be UTC+HH or UTC-HH", s))
	}
	digits := tz[4:]
	if len(digits) == 0 || len(digits) > 2 {
		return 0, 0, errors.NewParseError(fmt.Sprintf("timezone %q must be UTC+HH or UTC-HH", s))
	}
	hours, err := strconv.Atoi(digits)
	if err != nil {
		return 0, 0, errors.WrapParseError(err, fmt.Sprintf("timezone %q must be UTC+HH or UTC-HH", s))
	}
	if hours > 23 {
		return 0, 0, errors.Validationf("timezone offset must be 0-23 hours, got %d", hours)
	}

	var sign uint8
	if tz[3] == '+' {
		sign = 1
	}
	return sign, hours, nil
}

// Merge returns a copy with only the supplied fields of patch replaced.
// Supplying raw groups switches to raw mode and drops the semantic fields;
// supplying any semantic field switches back, keeping the other semantic
// fields already set.
func (u UserBits) Merge(patch UserBitsInput) (UserBits, error) {
	if patch.Groups != nil && patch.hasSemantic() {
		return UserBits{}, errors.NewConfigError("user bits: raw groups and date/timezone/reel/camera are mutually exclusive")
	}

	in := u.input.clone()
	patch = patch.clone()

	if patch.Groups != nil {
		in.Groups = patch.Groups
		in.Date, in.Timezone, in.Camera, in.Reel = "", "", "", nil
	}
	if patch.hasSemantic() {
		in.Groups = nil
		if patch.Date != "" {
			in.Date = patch.Date
		}
		if patch.Timezone != "" {
			in.Timezone = patch.Timezone
		}
		if patch.Reel != nil {
			in.Reel = patch.Reel
		}
		if patch.Camera != "" {
			in.Camera = patch.Camera
		}
	}
	if patch.BinaryGroups != nil {
		in.BinaryGroups = patch.BinaryGroups
	}
	if patch.Field1 != nil {
		in.Field1 = patch.Field1
	}

	return NewUserBits(in)
}

// WithField1 replaces only the nibble carried in frame bits 4-7.
func (u UserBits) WithField1(v int) (UserBits, error) {
	return u.Merge(UserBitsInput{Field1: &v})
}

// Nibbles returns the eight 4-bit user fields in frame order. Group g fills
// nibbles 2g (low) and 2g+1 (high); a field1 override replaces nibble 0.
func (u UserBits) Nibbles() [8]uint8 {
	var n [8]uint8
	for g, v := range u.groups {
		n[2*g] = v & 0x0f
		n[2*g+1] = v >> 4
	}
	if u.hasField1 {
		n[0] = u.field1
	}
	return n
}

// Groups is the packed 32-bit payload before the field1 override.
func (u UserBits) Groups() [4]uint8 { return u.groups }

func (u UserBits) Mode() UserBitsMode { return u.mode }

// BinaryGroups is the full 8-bit flag mask; only BGF0-BGF2 reach the frame.
func (u UserBits) BinaryGroups() uint8 { return u.binaryGroups }

// Field1 returns the override nibble and whether one is set.
func (u UserBits) Field1() (uint8, bool) { return u.field1, u.hasField1 }

// Input returns the fields the payload was built from.
func (u UserBits) Input() UserBitsInput { return u.input.clone() }

func bcd(v int) uint8 {
	return uint8((v/10)<<4 | v%10)
}
