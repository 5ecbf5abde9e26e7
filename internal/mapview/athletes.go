package mapview

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/s2"

	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/units"
	"github.com/banshee-data/saucemap/internal/world"
)

// Athlete animation timing. Updates younger than maxPlayAge animate over an
// estimate of the update interval; older ones snap.
const (
	delayEstSize = 6
	delayEstSeed = 2000 // ms
	maxPlayAge   = 2500 * time.Millisecond
)

const pinLoading = "..."

// RenderAthleteStates applies a batch of athlete updates. When the watched
// athlete is in the batch the view first follows it to its course, portal
// road and route. Batches are serialized and applied under one lock, so
// they become visible together on the next frame. Athlete details are
// refreshed in the background afterwards; Drain waits for them.
func (v *Viewport) RenderAthleteStates(ctx context.Context, states []world.AthleteState) error {
	v.athleteSerial.Lock()
	defer v.athleteSerial.Unlock()

	var watchingID, courseID int
	v.update(func() { watchingID, courseID = v.watchingID, v.courseID })
	if watchingID == 0 {
		return nil
	}
	var watching *world.AthleteState
	for i := range states {
		if states[i].AthleteID == watchingID {
			watching = &states[i]
			break
		}
	}
	if watching == nil && courseID == 0 {
		return nil
	}
	if watching != nil {
		if err := v.followWatching(ctx, *watching); err != nil {
			return err
		}
	}

	var ids []int
	v.update(func() { ids = v.applyStates(states) })
	if v.athletes != nil && len(ids) > 0 {
		v.background.Add(1)
		go func() {
			defer v.background.Done()
			v.refreshAthleteDetails(context.WithoutCancel(ctx), ids)
		}()
	}
	return nil
}

// followWatching moves the view to the watched athlete's course and road or
// route.
func (v *Viewport) followWatching(ctx context.Context, st world.AthleteState) error {
	var (
		needCourse  bool
		preferRoute bool
		routeID     int
	)
	v.update(func() {
		if st.Portal {
			needCourse = !v.portal || !v.hasRoad || st.RoadID != v.roadID || st.CourseID != v.courseID
		} else {
			needCourse = v.portal || st.CourseID != v.courseID
		}
		preferRoute, routeID = v.preferRoute, v.routeID
	})
	if needCourse {
		var opts []CourseOption
		if st.Portal {
			opts = append(opts, WithPortalRoad(st.RoadID))
		}
		if err := v.SetCourse(ctx, st.CourseID, opts...); err != nil {
			return fmt.Errorf("follow athlete %d: %w", st.AthleteID, err)
		}
	}
	if preferRoute {
		switch {
		case st.RouteID == 0:
			v.update(v.clearRoute)
		case st.RouteID != routeID:
			laps := v.subgroupLaps(ctx, st)
			if _, err := v.SetActiveRoute(ctx, st.RouteID, laps); err != nil {
				monitoring.Opsf("follow athlete %d route %d: %v", st.AthleteID, st.RouteID, err)
			}
		}
	}
	v.update(func() {
		if v.routeID == 0 && (!v.hasRoad || st.RoadID != v.roadID) {
			v.setActiveRoad(st.RoadID)
		}
	})
	return nil
}

// subgroupLaps returns the lap count of the athlete's event subgroup when
// it races the same route. The subgroup route sometimes lags the state, in
// which case one lap is used.
func (v *Viewport) subgroupLaps(ctx context.Context, st world.AthleteState) int {
	if st.EventSubgroupID == 0 || v.events == nil {
		return 1
	}
	sg, err := v.events.EventSubgroup(ctx, st.EventSubgroupID)
	if err != nil {
		monitoring.Diagf("event subgroup %d: %v", st.EventSubgroupID, err)
		return 1
	}
	if sg == nil || sg.RouteID != st.RouteID {
		return 1
	}
	return sg.Laps
}

func (v *Viewport) clearRoute() {
	v.routeID, v.routeLaps, v.route = 0, 0, nil
	if v.routeHighlight != nil {
		v.removeHighlight(v.routeHighlight)
		v.routeHighlight = nil
	}
}

// PowerLevel returns the display zone for a power reading in watts.
func PowerLevel(watts float64) string {
	switch {
	case watts < 200:
		return "z1"
	case watts < 250:
		return "z2"
	case watts < 300:
		return "z3"
	case watts < 450:
		return "z4"
	case watts < 600:
		return "z5"
	default:
		return "z6"
	}
}

func (v *Viewport) addAthleteEntity(athleteID int) *Entity {
	ent := NewEntity(v.clock, AthleteEntityID(athleteID), KindAthlete)
	ent.gc = true
	ent.delayEst = newEWMA(delayEstSize, delayEstSeed)
	ent.SetTag("self", athleteID == v.athleteID)
	ent.SetTag("watching", athleteID == v.watchingID)
	ent.SetPinContent(pinLoading)
	v.addEntity(ent)
	return ent
}

// applyStates updates athlete entities in batch order and returns the ids
// it applied.
func (v *Viewport) applyStates(states []world.AthleteState) []int {
	now := v.clock.Now()
	ids := make([]int, 0, len(states))
	for _, st := range states {
		ent := v.ents[AthleteEntityID(st.AthleteID)]
		if ent == nil {
			ent = v.addAthleteEntity(st.AthleteID)
		}
		if ent.delayEst == nil {
			ent.delayEst = newEWMA(delayEstSize, delayEstSeed)
		}
		if age := now.Sub(ent.lastSeen); age > 0 {
			if !ent.lastSeen.IsZero() && age < maxPlayAge {
				// Aim just above the update rate; after a miss prefer lag
				// over jumps.
				ms := float64(age) / float64(time.Millisecond)
				influence := ms * 8
				if ent.Playing() {
					influence = ms + 100
				}
				est := ent.delayEst.update(influence)
				ent.SetDuration(time.Duration(est * float64(time.Millisecond)))
			} else {
				ent.SetDuration(0)
			}
		}
		if err := ent.SetPosition(st.X, st.Y); err != nil {
			monitoring.Diagf("athlete %d: %v", st.AthleteID, err)
			continue
		}
		ent.SetData("power-level", PowerLevel(st.Power))
		ent.lastSeen = now
		if ent.Pinned() {
			ent.SetPinContent(v.athletePin(st))
		}
		if st.AthleteID == v.watchingID && !v.trackingPaused {
			v.autoHeadingSaved = st.Heading
			if v.autoHeading {
				v.setHeading(st.Heading)
			}
			v.autoCenterSaved = &[2]float64{st.X, st.Y}
			if v.autoCenter {
				v.setCenter(st.X, st.Y)
			}
			if v.autoCenter || v.autoHeading {
				v.updateGlobalTransform()
			}
		}
		v.markPending(ent)
		ids = append(ids, st.AthleteID)
	}
	return ids
}

// athletePin is the pin text: name, power and speed on separate lines.
func (v *Viewport) athletePin(st world.AthleteState) string {
	name := "ID: " + strconv.Itoa(st.AthleteID)
	if v.athletes != nil {
		if ad := v.athletes.Cached(st.AthleteID); ad != nil && ad.Athlete != nil {
			switch {
			case ad.Athlete.FLast != "":
				name = ad.Athlete.FLast
			case ad.Athlete.Name != "":
				name = ad.Athlete.Name
			}
		}
	}
	return strings.Join([]string{
		name,
		"Power: " + units.FormatPower(st.Power),
		"Speed: " + units.FormatSpeed(st.Speed, st.Sport, v.units),
	}, "\n")
}

func (v *Viewport) refreshAthleteDetails(ctx context.Context, ids []int) {
	ads, err := v.athletes.Lookup(ctx, ids)
	if err != nil {
		monitoring.Diagf("athlete details for %d athletes: %v", len(ids), err)
		return
	}
	v.update(func() {
		for _, ad := range ads {
			if ad == nil {
				continue
			}
			if ent := v.ents[AthleteEntityID(ad.AthleteID)]; ent != nil {
				applyAthleteData(ent, ad)
			}
		}
	})
}

func applyAthleteData(ent *Entity, ad *world.AthleteData) {
	a := ad.Athlete
	ent.SetTag("bot", a != nil && a.Type == "PACER_BOT")
	ent.SetTag("leader", ad.EventLeader)
	ent.SetTag("sweeper", ad.EventSweeper)
	ent.SetTag("marked", a != nil && a.Marked)
	ent.SetTag("following", a != nil && a.Following)
}

// LatLngToPosition converts a geodetic position to world units for the
// current course.
func (v *Viewport) LatLngToPosition(ll s2.LatLng) (x, y float64, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.meta == nil {
		return 0, 0, false
	}
	x, y = v.meta.LatLngToPosition(ll)
	return x, y, true
}
