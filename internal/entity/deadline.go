package entity

import (
	"fmt"
	"strings"
	"time"
)

// DeadlinePreset - быстрый выбор срока, как на клавиатуре бота.
type DeadlinePreset string

const (
	DeadlineOneDay   DeadlinePreset = "1d"
	DeadlineTwoDays  DeadlinePreset = "2d"
	DeadlineOneWeek  DeadlinePreset = "1w"
	DeadlineTwoWeeks DeadlinePreset = "2w"
	DeadlineNever    DeadlinePreset = "never"
)

// ManualDeadlineLayout - формат ручного ввода: 01.01.2025 - 22:30
const ManualDeadlineLayout = "02.01.2006 - 15:04"

var presetOffsets = map[DeadlinePreset]time.Duration{
	DeadlineOneDay:   24 * time.Hour,
	DeadlineTwoDays:  48 * time.Hour,
	DeadlineOneWeek:  7 * 24 * time.Hour,
	DeadlineTwoWeeks: 14 * 24 * time.Hour,
}

// DeadlineChoice - выбор срока: пресет, ручной ввод или точное время.
// Нулевое значение означает "без срока".
type DeadlineChoice struct {
	Preset DeadlinePreset `json:"preset,omitempty"`
	Manual string         `json:"manual,omitempty"`
	At     *time.Time     `json:"at,omitempty"`
}

// Resolve вычисляет дедлайн относительно now. nil - задача бессрочная.
// Прошедшая дата не запрещена: задача станет просроченной на следующем тике.
func (c DeadlineChoice) Resolve(now time.Time, loc *time.Location) (*time.Time, error) {
	switch {
	case c.At != nil:
		at := c.At.In(loc)
		return &at, nil
	case strings.TrimSpace(c.Manual) != "":
		at, err := ParseManualDeadline(c.Manual, loc)
		if err != nil {
			return nil, err
		}
		return &at, nil
	case c.Preset == "" || c.Preset == DeadlineNever:
		return nil, nil
	}

	offset, ok := presetOffsets[c.Preset]
	if !ok {
		return nil, fmt.Errorf("%w: unknown deadline preset %q", ErrInvalidTaskData, c.Preset)
	}
	at := now.In(loc).Add(offset)
	return &at, nil
}

func ParseManualDeadline(text string, loc *time.Location) (time.Time, error) {
	at, err := time.ParseInLocation(ManualDeadlineLayout, strings.TrimSpace(text), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: deadline must look like 01.01.2025 - 22:30", ErrInvalidTaskData)
	}
	return at, nil
}
