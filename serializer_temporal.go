package cellcrypt

import (
	"encoding/binary"
	"strings"
	"time"
)

// Temporal encodings (all little-endian):
//   date:           [days since 0001-01-01:3]
//   time(n):        [units of 10^-n s since midnight:3|4|5]
//   datetime2(n):   time(n) || date
//   datetimeoffset: time(n) || date, both in UTC, || [offset minutes:2 signed]
//   datetime:       [days since 1900-01-01:4 signed][1/300 s ticks since midnight:4]
//   smalldatetime:  [days since 1900-01-01:2][minutes since midnight:2]
//
// Values other than datetimeoffset are taken at their wall clock and decode
// as UTC. Sub-second digits beyond the scale are truncated; datetime rounds
// to the nearest tick and smalldatetime to the nearest minute.

const (
	secondsPerDay   = 24 * 60 * 60
	datetimeTicks   = 300
	maxOffsetMinute = 14 * 60
)

var (
	epoch0001 = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	epoch1900 = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

	minDateTime      = time.Date(1753, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxSmallDateTime = time.Date(2079, time.June, 6, 23, 59, 29, 999999999, time.UTC)
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999",
}

var pow10 = [...]int64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

// timeSize returns the encoded length of time(scale).
func timeSize(scale int) int {
	switch {
	case scale <= 2:
		return 3
	case scale <= 4:
		return 4
	default:
		return 5
	}
}

func (s *sqlSerializer) serializeTemporal(value any) ([]byte, error) {
	t, err := s.toTime(value)
	if err != nil {
		return nil, err
	}

	switch s.typ {
	case TypeDate:
		return s.appendDate(nil, wallDate(t))
	case TypeTime:
		return s.appendTime(nil, t), nil
	case TypeDateTime2:
		return s.appendDate(s.appendTime(nil, t), wallDate(t))
	case TypeDateTimeOffset:
		_, offset := t.Zone()
		offsetMinutes := offset / 60
		if offsetMinutes < -maxOffsetMinute || offsetMinutes > maxOffsetMinute {
			return nil, newError(ErrValueOutOfRange, "illegal offset minutes %d", offsetMinutes)
		}
		u := t.UTC()
		out, err := s.appendDate(s.appendTime(nil, u), wallDate(u))
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint16(out, uint16(int16(offsetMinutes))), nil
	case TypeDateTime:
		return s.serializeDateTime(t)
	case TypeSmallDateTime:
		return s.serializeSmallDateTime(t)
	}
	return nil, s.invalidValue(value)
}

func (s *sqlSerializer) deserializeTemporal(data []byte) (any, error) {
	switch s.typ {
	case TypeDate:
		if len(data) != 3 {
			return nil, s.malformed(data)
		}
		return dateFromDays(readUint24(data)), nil
	case TypeTime:
		ns, err := s.readTime(data)
		if err != nil {
			return nil, err
		}
		return epoch0001.Add(time.Duration(ns)), nil
	case TypeDateTime2, TypeDateTimeOffset:
		n := timeSize(s.scale)
		want := n + 3
		if s.typ == TypeDateTimeOffset {
			want += 2
		}
		if len(data) != want {
			return nil, s.malformed(data)
		}
		ns, err := s.readTime(data[:n])
		if err != nil {
			return nil, err
		}
		t := dateFromDays(readUint24(data[n : n+3])).Add(time.Duration(ns))
		if s.typ == TypeDateTime2 {
			return t, nil
		}
		offsetMinutes := int(int16(binary.LittleEndian.Uint16(data[n+3:])))
		if offsetMinutes < -maxOffsetMinute || offsetMinutes > maxOffsetMinute {
			return nil, s.malformed(data)
		}
		return t.In(time.FixedZone("", offsetMinutes*60)), nil
	case TypeDateTime:
		if len(data) != 8 {
			return nil, s.malformed(data)
		}
		days := int32(binary.LittleEndian.Uint32(data[:4]))
		ticks := int64(binary.LittleEndian.Uint32(data[4:]))
		if ticks >= secondsPerDay*datetimeTicks {
			return nil, s.malformed(data)
		}
		ms := (ticks*10 + 1) / 3
		return epoch1900.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond), nil
	case TypeSmallDateTime:
		if len(data) != 4 {
			return nil, s.malformed(data)
		}
		days := binary.LittleEndian.Uint16(data[:2])
		minutes := binary.LittleEndian.Uint16(data[2:])
		if minutes >= 24*60 {
			return nil, s.malformed(data)
		}
		return epoch1900.AddDate(0, 0, int(days)).Add(time.Duration(minutes) * time.Minute), nil
	}
	return nil, s.malformed(data)
}

// appendTime appends the time-of-day of t's wall clock at the serializer's scale.
func (s *sqlSerializer) appendTime(out []byte, t time.Time) []byte {
	h, m, sec := t.Clock()
	seconds := int64(h*3600 + m*60 + sec)
	units := seconds*pow10[s.scale] + int64(t.Nanosecond())/pow10[9-s.scale]

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(units))
	return append(out, buf[:timeSize(s.scale)]...)
}

// readTime decodes time(scale) into nanoseconds since midnight.
func (s *sqlSerializer) readTime(data []byte) (int64, error) {
	if len(data) != timeSize(s.scale) {
		return 0, s.malformed(data)
	}
	var buf [8]byte
	copy(buf[:], data)
	units := int64(binary.LittleEndian.Uint64(buf[:]))
	if units >= secondsPerDay*pow10[s.scale] {
		return 0, s.malformed(data)
	}
	return units * pow10[9-s.scale], nil
}

// appendDate appends the 3-byte day count of d since 0001-01-01.
func (s *sqlSerializer) appendDate(out []byte, d time.Time) ([]byte, error) {
	if d.Year() < 1 || d.Year() > 9999 {
		return nil, s.outOfRange()
	}
	days := uint32((d.Unix() - epoch0001.Unix()) / secondsPerDay)
	return append(out, byte(days), byte(days>>8), byte(days>>16)), nil
}

func (s *sqlSerializer) serializeDateTime(t time.Time) ([]byte, error) {
	d := wallDate(t)
	if d.Before(minDateTime) || d.Year() > 9999 {
		return nil, s.outOfRange()
	}

	h, m, sec := t.Clock()
	ms := int64(t.Nanosecond()) / int64(time.Millisecond)
	ticks := int64(h*3600+m*60+sec)*datetimeTicks + (ms*3+5)/10
	if ticks >= secondsPerDay*datetimeTicks {
		d = d.AddDate(0, 0, 1)
		ticks -= secondsPerDay * datetimeTicks
		if d.Year() > 9999 {
			return nil, s.outOfRange()
		}
	}

	days := (d.Unix() - epoch1900.Unix()) / secondsPerDay
	out := binary.LittleEndian.AppendUint32(nil, uint32(int32(days)))
	return binary.LittleEndian.AppendUint32(out, uint32(ticks)), nil
}

func (s *sqlSerializer) serializeSmallDateTime(t time.Time) ([]byte, error) {
	wall := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	h, m, sec := t.Clock()
	minutes := h*60 + m
	// Seconds round to the 1/300 s datetime tick first, so 29.999 s rounds
	// up and 29.998 s rounds down.
	ticks := (int64(sec)*1e9 + int64(t.Nanosecond())) * 300
	if (ticks+5e8)/1e9 >= 30*300 {
		minutes++
	}
	if minutes == 24*60 {
		wall = wall.AddDate(0, 0, 1)
		minutes = 0
	}
	if wall.Before(epoch1900) || wall.After(maxSmallDateTime) {
		return nil, s.outOfRange()
	}

	days := (wall.Unix() - epoch1900.Unix()) / secondsPerDay
	out := binary.LittleEndian.AppendUint16(nil, uint16(days))
	return binary.LittleEndian.AppendUint16(out, uint16(minutes)), nil
}

// toTime accepts time.Time and the string layouts in timeLayouts.
func (s *sqlSerializer) toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		str := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, str); err == nil {
				if layout == "15:04:05.999999999" {
					t = t.AddDate(1-t.Year(), 0, 0)
				}
				return t, nil
			}
		}
		return time.Time{}, newError(ErrInvalidValue, "invalid temporal value %q provided for %s", v, s.typ)
	}
	return time.Time{}, s.invalidValue(value)
}

// wallDate returns midnight UTC of t's wall-clock date.
func wallDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateFromDays(days uint32) time.Time {
	return epoch0001.AddDate(0, 0, int(days))
}

func readUint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
