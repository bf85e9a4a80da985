package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for departure dates and search queries
const DateLayout = "2006-01-02"

// ScheduleStatus is the lifecycle state of a schedule
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleRunning   ScheduleStatus = "running"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleDelayed   ScheduleStatus = "delayed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// StationScheduleStatus is the operational state of one station entry
type StationScheduleStatus string

const (
	StationPending  StationScheduleStatus = "pending"
	StationArrived  StationScheduleStatus = "arrived"
	StationDeparted StationScheduleStatus = "departed"
	StationSkipped  StationScheduleStatus = "skipped"
	StationDelayed  StationScheduleStatus = "delayed"
)

func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleScheduled, ScheduleRunning, ScheduleCompleted, ScheduleDelayed, ScheduleCancelled:
		return true
	}
	return false
}

func (s StationScheduleStatus) Valid() bool {
	switch s {
	case StationPending, StationArrived, StationDeparted, StationSkipped, StationDelayed:
		return true
	}
	return false
}

// Schedule is one day's run of a train over its route
type Schedule struct {
	ID            string         `db:"id" json:"id"`
	TrainID       string         `db:"train_id" json:"trainId"`
	RouteID       string         `db:"route_id" json:"routeId"`
	DepartureDate string         `db:"departure_date" json:"departureDate"` // YYYY-MM-DD
	DepartureTime string         `db:"departure_time" json:"departureTime"` // HH:MM
	Status        ScheduleStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`

	Train            *TrainSummary     `json:"train,omitempty"`
	Route            *RouteSummary     `json:"route,omitempty"`
	StationSchedules []StationSchedule `json:"stationSchedules,omitempty"`
	StationCount     int               `json:"stationCount,omitempty"`
}

// StationSchedule is one route station's timing entry within a schedule
type StationSchedule struct {
	ID             string `db:"id" json:"id"`
	ScheduleID     string `db:"schedule_id" json:"scheduleId"`
	StationID      string `db:"station_id" json:"stationId"`
	RouteStationID string `db:"route_station_id" json:"routeStationId"`
	SequenceOrder  int    `db:"sequence_order" json:"sequenceOrder"`

	EstimatedArrival   time.Time  `db:"estimated_arrival" json:"estimatedArrival"`
	EstimatedDeparture time.Time  `db:"estimated_departure" json:"estimatedDeparture"`
	ActualArrival      *time.Time `db:"actual_arrival" json:"actualArrival"`
	ActualDeparture    *time.Time `db:"actual_departure" json:"actualDeparture"`

	// Minutes. DurationFromPrevious may be negative; it is kept as a data-quality signal.
	DurationFromPrevious int `db:"duration_from_previous" json:"durationFromPrevious"`
	WaitingTime          int `db:"waiting_time" json:"waitingTime"`

	Status   StationScheduleStatus `db:"status" json:"status"`
	Platform *string               `db:"platform" json:"platformNumber,omitempty"`
	Remarks  *string               `db:"remarks" json:"remarks,omitempty"`

	Station *Station `json:"station,omitempty"`
}

// StationScheduleUpdate carries an operational change to one station entry.
// Nil fields are left untouched.
type StationScheduleUpdate struct {
	Status          *StationScheduleStatus
	ActualArrival   *time.Time
	ActualDeparture *time.Time
	Platform        *string
	Remarks         *string
}

// ScheduleFilter selects schedules for listing
type ScheduleFilter struct {
	TrainID       string
	DepartureDate string // YYYY-MM-DD
	DepartureTime string
	Status        ScheduleStatus
	Limit         int
	Offset        int
}

var departureTimeRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ValidDepartureTime reports whether s is a 24-hour HH:MM clock time
func ValidDepartureTime(s string) bool {
	return departureTimeRegex.MatchString(s)
}

// ClockMinutes converts an HH:MM departure time to minutes after midnight
func ClockMinutes(s string) (int, error) {
	if !ValidDepartureTime(s) {
		return 0, fmt.Errorf("invalid time format %q, use HH:MM (24-hour)", s)
	}
	hh, mm, _ := strings.Cut(s, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m, nil
}

// DepartureInstant combines the schedule's date and time of day in loc
func (s *Schedule) DepartureInstant(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s.DepartureDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure date %q: %w", s.DepartureDate, err)
	}
	minutes, err := ClockMinutes(s.DepartureTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}
