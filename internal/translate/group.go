package translate

import (
	"fmt"
	"strconv"

	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// =============================================================================
// GROUP REFERENCES
// =============================================================================

// GroupRef is the resolved identity of the group a row names.
type GroupRef struct {
	ID       int
	ParentID int
	TypeID   int
	Name     string
}

// groupRef resolves the GroupId/GroupName/ParentGroupId/GroupTypeId columns
// shared by groups, groupmembers and attendance.
//
//   - ParentID is ParentGroupId, or RootGroupID(type) when absent.
//   - ID is GroupId, or GroupID(name, ParentID) when absent.
//
// ok is false when the row has neither a GroupId nor a name.
func groupRef(f *fields) (GroupRef, bool) {
	ref := GroupRef{Name: NormalizeWhitespace(f.str(ColGroupName))}

	if t := f.intPtr(ColGroupTypeID); t != nil {
		ref.TypeID = *t
	} else {
		f.warn(ColGroupTypeID, "missing group type, using type 0")
	}

	if p := f.intPtr(ColParentGroupID); p != nil {
		ref.ParentID = *p
	} else {
		ref.ParentID = identity.RootGroupID(ref.TypeID)
	}

	switch id := f.intPtr(ColGroupID); {
	case id != nil:
		ref.ID = *id
	case ref.Name != "":
		ref.ID = identity.GroupID(ref.Name, ref.ParentID)
	default:
		f.warn(ColGroupName, "group has no id and no name")
		return ref, false
	}
	return ref, true
}

// =============================================================================
// GROUP TYPES AND GROUPS
// =============================================================================

// GroupType translates the group type columns of a groups row.
func GroupType(row snapshot.Row, _ *Context) Outcome[*types.GroupType] {
	f := read(row)

	id := f.intPtr(ColGroupTypeID)
	if id == nil {
		f.warn(ColGroupTypeID, "missing group type id")
		return drop[*types.GroupType](f.warnings)
	}
	name := NormalizeWhitespace(f.str(ColGroupTypeName))
	if name == "" {
		name = fmt.Sprintf("Group Type %d", *id)
	}
	return emit(&types.GroupType{Id: *id, Name: name}, f.warnings)
}

// RootGroup returns the synthetic parent of every top-level group of a type.
func RootGroup(gt *types.GroupType) *types.Group {
	return &types.Group{
		Id:          identity.RootGroupID(gt.Id),
		GroupTypeId: gt.Id,
		Name:        gt.Name,
		IsActive:    true,
	}
}

// Group translates a groups row. A group with no GroupId and no name cannot
// be identified and is dropped.
func Group(row snapshot.Row, _ *Context) Outcome[*types.Group] {
	f := read(row)

	ref, ok := groupRef(f)
	if !ok {
		return drop[*types.Group](f.warnings)
	}

	g := &types.Group{
		Id:            ref.ID,
		ParentGroupId: types.IntPtr(ref.ParentID),
		GroupTypeId:   ref.TypeID,
		Name:          ref.Name,
		Description:   f.str(ColDescription),
		IsActive:      f.boolOr(ColIsActive, true),
		Capacity:      f.intPtr(ColCapacity),
		MeetingDay:    f.str(ColMeetingDay),
		MeetingTime:   f.str(ColMeetingTime),
	}
	if g.Name == "" {
		f.warn(ColGroupName, "group %d has no name", g.Id)
		g.Name = "Group " + strconv.Itoa(g.Id)
	}
	if c, ok := Campus(f.str(ColCampusName)); ok {
		g.CampusId = types.IntPtr(c.Id)
	}
	return emit(g, f.warnings)
}

// GroupMember translates a groupmembers row.
//
// ID: DeriveID([group, person, role]).
func GroupMember(row snapshot.Row, ctx *Context) Outcome[*types.GroupMember] {
	f := read(row)

	person := f.intPtr(ColIndividualID)
	if person == nil {
		f.warn(ColIndividualID, "member has no individual")
		return drop[*types.GroupMember](f.warnings)
	}
	ref, ok := groupRef(f)
	if !ok {
		return drop[*types.GroupMember](f.warnings)
	}

	role := lookupWarn(f, ctx.Values.Get(MapGroupRole), ColRole)
	m := &types.GroupMember{
		Id:       identity.DeriveID(strconv.Itoa(ref.ID), strconv.Itoa(*person), role),
		GroupId:  ref.ID,
		PersonId: *person,
		Role:     role,
	}
	return emit(m, f.warnings)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// AttendanceTimeLayout is how start times are rendered into the derived id.
const AttendanceTimeLayout = "2006-01-02T15:04:05"

// Attendance translates an attendance row.
//
// ID: AttendanceId when present (reserved in the allocator; a repeat of an
// earlier row's id drops the row), otherwise derived from [person, group,
// start] and made unique by the allocator.
// Running out of fallback ids sets Err, which stops the stage.
func Attendance(row snapshot.Row, ctx *Context) Outcome[*types.Attendance] {
	f := read(row)

	person := f.intPtr(ColIndividualID)
	if person == nil {
		f.warn(ColIndividualID, "attendance has no individual")
		return drop[*types.Attendance](f.warnings)
	}
	ref, ok := groupRef(f)
	if !ok {
		return drop[*types.Attendance](f.warnings)
	}
	start := f.timePtr(ColStartDateTime)
	if start == nil {
		f.warn(ColStartDateTime, "attendance has no start time")
		return drop[*types.Attendance](f.warnings)
	}

	a := &types.Attendance{
		PersonId:      *person,
		GroupId:       ref.ID,
		StartDateTime: *start,
		EndDateTime:   f.timePtr(ColEndDateTime),
		Note:          f.str(ColNote),
	}
	if c, ok := Campus(f.str(ColCampusName)); ok {
		a.CampusId = types.IntPtr(c.Id)
	}

	if id := f.intPtr(ColAttendanceID); id != nil {
		a.Id = *id
		if ctx.Allocator != nil && !ctx.Allocator.Reserve(a.Id) {
			f.warn(ColAttendanceID, "attendance id %d repeats an earlier row", a.Id)
			return drop[*types.Attendance](f.warnings)
		}
	} else {
		if ctx.Allocator == nil {
			return Outcome[*types.Attendance]{Warnings: f.warnings, Err: fmt.Errorf("attendance row %d: no id allocator", row.Number)}
		}
		id, collided, err := ctx.Allocator.Assign(strconv.Itoa(*person), strconv.Itoa(ref.ID), start.Format(AttendanceTimeLayout))
		if err != nil {
			return Outcome[*types.Attendance]{Warnings: f.warnings, Err: fmt.Errorf("attendance row %d: %w", row.Number, err)}
		}
		if collided {
			f.warn("Id", "derived id collided, assigned %d by %s fallback", id, ctx.Allocator.Fallback())
		}
		a.Id = id
	}

	a.Note = appendNote(a.Note, Notes(f.warnings))
	return emit(a, f.warnings)
}
