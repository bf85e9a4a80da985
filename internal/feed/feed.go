// Package feed publishes the day's schedules as a GTFS-Realtime TripUpdates feed.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/railnet/railnet/models"
)

const (
	Binary        = false
	HumanReadable = true
)

type Store interface {
	ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
}

// SchedulesOn loads every schedule bound to date with its station entries
func SchedulesOn(ctx context.Context, store Store, date string) ([]models.Schedule, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, models.Invalidf("Invalid date format. Use YYYY-MM-DD")
	}

	const pageSize = 100
	var out []models.Schedule
	for offset := 0; ; offset += pageSize {
		page, err := store.ListSchedules(ctx, models.ScheduleFilter{DepartureDate: date, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, sc := range page {
			full, err := store.GetSchedule(ctx, sc.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, *full)
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// Build converts schedules into a feed with one TripUpdate per schedule
func Build(schedules []models.Schedule, generatedAt time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: ptr("2.0"),
			Incrementality:      ptr(gtfs.FeedHeader_FULL_DATASET),
			Timestamp:           ptr(uint64(generatedAt.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(schedules)),
	}
	for i := range schedules {
		msg.Entity = append(msg.Entity, tripUpdate(&schedules[i]))
	}
	return msg
}

func tripUpdate(sc *models.Schedule) *gtfs.FeedEntity {
	trip := &gtfs.TripDescriptor{
		TripId:    ptr(sc.ID),
		RouteId:   ptr(sc.RouteID),
		StartDate: ptr(strings.ReplaceAll(sc.DepartureDate, "-", "")),
		StartTime: ptr(startTime(sc.DepartureTime)),
	}

	e := &gtfs.FeedEntity{Id: ptr(sc.ID), TripUpdate: &gtfs.TripUpdate{Trip: trip}}
	if sc.TrainID != "" {
		e.TripUpdate.Vehicle = &gtfs.VehicleDescriptor{Id: ptr(sc.TrainID)}
		if sc.Train != nil {
			e.TripUpdate.Vehicle.Label = ptr(sc.Train.Number)
		}
	}

	if sc.Status == models.ScheduleCancelled {
		trip.ScheduleRelationship = ptr(gtfs.TripDescriptor_CANCELED)
		return e
	}
	trip.ScheduleRelationship = ptr(gtfs.TripDescriptor_SCHEDULED)

	e.TripUpdate.StopTimeUpdate = make([]*gtfs.TripUpdate_StopTimeUpdate, len(sc.StationSchedules))
	for i := range sc.StationSchedules {
		e.TripUpdate.StopTimeUpdate[i] = stopTimeUpdate(&sc.StationSchedules[i])
	}
	return e
}

func stopTimeUpdate(ss *models.StationSchedule) *gtfs.TripUpdate_StopTimeUpdate {
	u := &gtfs.TripUpdate_StopTimeUpdate{
		StopSequence: ptr(uint32(ss.SequenceOrder)),
		StopId:       ptr(ss.StationID),
	}
	if ss.Status == models.StationSkipped {
		u.ScheduleRelationship = ptr(gtfs.TripUpdate_StopTimeUpdate_SKIPPED)
		return u
	}
	u.ScheduleRelationship = ptr(gtfs.TripUpdate_StopTimeUpdate_SCHEDULED)
	u.Arrival = stopTimeEvent(ss.EstimatedArrival, ss.ActualArrival)
	u.Departure = stopTimeEvent(ss.EstimatedDeparture, ss.ActualDeparture)
	return u
}

// stopTimeEvent prefers the recorded time; delay is relative to the estimate
func stopTimeEvent(estimated time.Time, actual *time.Time) *gtfs.TripUpdate_StopTimeEvent {
	if actual == nil {
		return &gtfs.TripUpdate_StopTimeEvent{Time: ptr(estimated.Unix()), Uncertainty: ptr(int32(1))}
	}
	return &gtfs.TripUpdate_StopTimeEvent{
		Time:        ptr(actual.Unix()),
		Delay:       ptr(int32(actual.Sub(estimated).Seconds())),
		Uncertainty: ptr(int32(0)),
	}
}

// startTime turns "9:05" into "09:05:00"
func startTime(hhmm string) string {
	m, err := models.ClockMinutes(hhmm)
	if err != nil {
		return hhmm
	}
	return fmt.Sprintf("%02d:%02d:00", m/60, m%60)
}

// Write encodes msg as protobuf, or as prototext when humanReadable is set
func Write(w io.Writer, msg *gtfs.FeedMessage, humanReadable bool) error {
	var data []byte
	var err error

	if humanReadable {
		data, err = prototext.MarshalOptions{Multiline: true}.Marshal(msg)
	} else {
		data, err = proto.Marshal(msg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}

	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

// WriteFile writes the feed next to path and renames it into place,
// so readers never see a partial file.
func WriteFile(path string, msg *gtfs.FeedMessage, humanReadable bool) error {
	tempPath := tempOutputPath(path)

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tempPath, err)
	}

	b := bufio.NewWriter(f)
	if err := Write(b, msg, humanReadable); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := b.Flush(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", tempPath, err)
	}

	return os.Rename(tempPath, path)
}

func tempOutputPath(path string) string {
	dir, name := filepath.Split(path)
	return fmt.Sprintf("%s.%s.tmp", dir, name)
}

func ptr[T any](v T) *T {
	return &v
}
