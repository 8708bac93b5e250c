package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sector - рабочая зона ресторана.
type Sector string

const (
	SectorBar     Sector = "bar"
	SectorHall    Sector = "hall"
	SectorKitchen Sector = "kitchen"
)

var sectorTitles = map[Sector]string{
	SectorBar:     "Бар",
	SectorHall:    "Зал",
	SectorKitchen: "Кухня",
}

func (s Sector) Valid() bool {
	_, ok := sectorTitles[s]
	return ok
}

// Title - человекочитаемое название для сообщений.
func (s Sector) Title() string {
	if t, ok := sectorTitles[s]; ok {
		return t
	}
	return string(s)
}

func ParseSector(raw string) (Sector, error) {
	s := Sector(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown sector %q", ErrInvalidTaskData, raw)
	}
	return s, nil
}

type AssigneeKind int

const (
	AssigneeNone AssigneeKind = iota
	AssigneeUser
	AssigneeSector
)

func (k AssigneeKind) String() string {
	switch k {
	case AssigneeUser:
		return "user"
	case AssigneeSector:
		return "sector"
	default:
		return "none"
	}
}

// Assignee - ответственный за задачу: один пользователь ИЛИ целый сектор.
// Поля закрыты, поэтому одновременно исполнитель и сектор заданы быть не могут.
type Assignee struct {
	kind   AssigneeKind
	userID int64
	sector Sector
}

func AssignUser(userID int64) Assignee {
	return Assignee{kind: AssigneeUser, userID: userID}
}

func AssignSector(s Sector) Assignee {
	return Assignee{kind: AssigneeSector, sector: s}
}

func Unassigned() Assignee {
	return Assignee{}
}

func (a Assignee) UserID() (int64, bool) {
	return a.userID, a.kind == AssigneeUser
}

func (a Assignee) Sector() (Sector, bool) {
	return a.sector, a.kind == AssigneeSector
}

func (a Assignee) IsUnassigned() bool { return a.kind == AssigneeNone }

func (a Assignee) Equal(b Assignee) bool { return a == b }

func (a Assignee) Validate() error {
	switch a.kind {
	case AssigneeUser:
		if a.userID <= 0 {
			return fmt.Errorf("%w: executor id must be positive", ErrInvalidTaskData)
		}
	case AssigneeSector:
		if !a.sector.Valid() {
			return fmt.Errorf("%w: unknown sector %q", ErrInvalidTaskData, a.sector)
		}
	default:
		return fmt.Errorf("%w: task must be assigned to a user or a sector", ErrInvalidTaskData)
	}
	return nil
}

func (a Assignee) String() string {
	switch a.kind {
	case AssigneeUser:
		return fmt.Sprintf("user:%d", a.userID)
	case AssigneeSector:
		return "sector:" + string(a.sector)
	default:
		return "none"
	}
}

// Columns раскладывает ответственного в пару колонок executor_id / sector.
// Одна из них всегда nil.
func (a Assignee) Columns() (executorID *int64, sector *string) {
	switch a.kind {
	case AssigneeUser:
		id := a.userID
		return &id, nil
	case AssigneeSector:
		s := string(a.sector)
		return nil, &s
	}
	return nil, nil
}

// AssigneeFromColumns собирает ответственного из колонок хранилища.
func AssigneeFromColumns(executorID *int64, sector *string) Assignee {
	if executorID != nil {
		return AssignUser(*executorID)
	}
	if sector != nil && *sector != "" {
		return AssignSector(Sector(*sector))
	}
	return Unassigned()
}

type assigneeJSON struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id,omitempty"`
	Sector Sector `json:"sector,omitempty"`
}

func (a Assignee) MarshalJSON() ([]byte, error) {
	return json.Marshal(assigneeJSON{Type: a.kind.String(), UserID: a.userID, Sector: a.sector})
}

func (a *Assignee) UnmarshalJSON(data []byte) error {
	var raw assigneeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "user":
		*a = AssignUser(raw.UserID)
	case "sector":
		s, err := ParseSector(string(raw.Sector))
		if err != nil {
			return err
		}
		*a = AssignSector(s)
	case "", "none":
		*a = Unassigned()
	default:
		return fmt.Errorf("%w: unknown assignee type %q", ErrInvalidTaskData, raw.Type)
	}
	return nil
}
